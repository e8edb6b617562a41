// Package marketdata provides read-only access to the external data sources
// feeding the advisory factors: Binance spot/futures public endpoints, the
// alternative.me Fear & Greed index, and a CSV quote feed for the US dollar
// index. No endpoint requires signing; every call is context-bound.
package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-advisor-bot/internal/circuit"
	"market-advisor-bot/internal/logging"
)

// Source names for the per-source circuit breakers
const (
	sourceSpot      = "spot"
	sourceFutures   = "futures"
	sourceFearGreed = "feargreed"
	sourceMacro     = "macro"
	sourceBenchmark = "benchmark"
)

type Client struct {
	spotBaseURL     string
	futuresBaseURL  string
	fearGreedURL    string
	macroQuoteURL   string
	benchHistoryURL string
	httpClient      *http.Client
	breakers        map[string]*circuit.Breaker
}

// Config holds data source endpoints
type Config struct {
	SpotBaseURL         string
	FuturesBaseURL      string
	FearGreedURL        string
	MacroQuoteURL       string
	BenchmarkHistoryURL string
	Timeout             time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	logger := logging.WithComponent("marketdata")
	breakers := make(map[string]*circuit.Breaker)
	for _, source := range []string{sourceSpot, sourceFutures, sourceFearGreed, sourceMacro, sourceBenchmark} {
		b := circuit.New(source, nil)
		b.OnTrip(func(name, reason string) {
			logger.Warn("data source on cooldown", "source", name, "reason", reason)
		})
		b.OnReset(func(name string) {
			logger.Info("data source recovered", "source", name)
		})
		breakers[source] = b
	}

	return &Client{
		spotBaseURL:     cfg.SpotBaseURL,
		futuresBaseURL:  cfg.FuturesBaseURL,
		fearGreedURL:    cfg.FearGreedURL,
		macroQuoteURL:   cfg.MacroQuoteURL,
		benchHistoryURL: cfg.BenchmarkHistoryURL,
		httpClient:      &http.Client{Timeout: timeout},
		breakers:        breakers,
	}
}

// SourceStats exposes breaker statistics per data source
func (c *Client) SourceStats() []map[string]interface{} {
	stats := make([]map[string]interface{}, 0, len(c.breakers))
	for _, source := range []string{sourceSpot, sourceFutures, sourceFearGreed, sourceMacro, sourceBenchmark} {
		stats = append(stats, c.breakers[source].GetStats())
	}
	return stats
}

// Kline represents a candlestick
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// FearGreed holds one Fear & Greed index reading
type FearGreed struct {
	Value          int
	Classification string
}

// MacroQuote holds one dollar-index quote
type MacroQuote struct {
	Symbol string
	Open   float64
	Close  float64
}

// FlowRatio holds a futures taker buy/sell volume ratio reading
type FlowRatio struct {
	BuySellRatio float64
	BuyVolume    float64
	SellVolume   float64
}

func (c *Client) get(ctx context.Context, source, endpoint string) ([]byte, error) {
	breaker := c.breakers[source]
	if breaker != nil {
		if ok, reason := breaker.Allow(); !ok {
			return nil, fmt.Errorf("%s source %s", source, reason)
		}
	}

	body, err := c.doGet(ctx, endpoint)
	if breaker != nil {
		if err != nil {
			breaker.RecordFailure(err)
		} else {
			breaker.RecordSuccess()
		}
	}
	return body, err
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

// GetKlines fetches candlestick data from the spot API
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, sourceSpot, fmt.Sprintf("%s/api/v3/klines?%s", c.spotBaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			continue
		}
		k := Kline{
			OpenTime:  int64(asFloat(raw[0])),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(asFloat(raw[6])),
		}
		klines = append(klines, k)
	}

	return klines, nil
}

// GetCurrentPrice fetches the latest trade price for a symbol
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, sourceSpot, fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.spotBaseURL, symbol))
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("error parsing ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// GetFearGreed fetches the latest Fear & Greed index reading
func (c *Client) GetFearGreed(ctx context.Context) (*FearGreed, error) {
	body, err := c.get(ctx, sourceFearGreed, c.fearGreedURL+"?limit=1")
	if err != nil {
		return nil, err
	}

	var fgResp struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &fgResp); err != nil {
		return nil, fmt.Errorf("error parsing fear/greed response: %w", err)
	}
	if len(fgResp.Data) == 0 {
		return nil, fmt.Errorf("no data in fear/greed response")
	}

	value, err := strconv.Atoi(fgResp.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("error parsing fear/greed value %q: %w", fgResp.Data[0].Value, err)
	}

	return &FearGreed{Value: value, Classification: fgResp.Data[0].ValueClassification}, nil
}

// GetMacroQuote fetches the dollar-index quote from the configured CSV feed.
// Expected stooq layout: Symbol,Date,Time,Open,High,Low,Close,Volume.
func (c *Client) GetMacroQuote(ctx context.Context) (*MacroQuote, error) {
	if c.macroQuoteURL == "" {
		return nil, fmt.Errorf("macro quote URL not configured")
	}

	body, err := c.get(ctx, sourceMacro, c.macroQuoteURL)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error parsing macro quote CSV: %w", err)
	}

	for _, rec := range records {
		if len(rec) < 7 || strings.EqualFold(rec[0], "Symbol") {
			continue
		}
		open, errO := strconv.ParseFloat(rec[3], 64)
		closePrice, errC := strconv.ParseFloat(rec[6], 64)
		if errO != nil || errC != nil {
			return nil, fmt.Errorf("unparseable macro quote row: %v", rec)
		}
		return &MacroQuote{Symbol: rec[0], Open: open, Close: closePrice}, nil
	}

	return nil, fmt.Errorf("no quote rows in macro feed")
}

// GetTakerFlowRatio fetches the latest futures taker buy/sell volume ratio,
// used as an institutional-flow proxy.
func (c *Client) GetTakerFlowRatio(ctx context.Context, symbol string) (*FlowRatio, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("period", "1h")
	params.Set("limit", "1")

	body, err := c.get(ctx, sourceFutures, fmt.Sprintf("%s/futures/data/takerlongshortRatio?%s", c.futuresBaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var rows []struct {
		BuySellRatio string `json:"buySellRatio"`
		BuyVol       string `json:"buyVol"`
		SellVol      string `json:"sellVol"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("error parsing flow ratio: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data in flow ratio response")
	}

	ratio, err := strconv.ParseFloat(rows[0].BuySellRatio, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing ratio %q: %w", rows[0].BuySellRatio, err)
	}

	return &FlowRatio{
		BuySellRatio: ratio,
		BuyVolume:    parseFloatString(rows[0].BuyVol),
		SellVolume:   parseFloatString(rows[0].SellVol),
	}, nil
}

// GetBenchmarkCloses fetches the trailing daily closes of the configured risk
// benchmark from its CSV history feed. Expected stooq layout:
// Date,Open,High,Low,Close,Volume with a header row.
func (c *Client) GetBenchmarkCloses(ctx context.Context, days int) ([]float64, error) {
	if c.benchHistoryURL == "" {
		return nil, fmt.Errorf("benchmark history URL not configured")
	}

	body, err := c.get(ctx, sourceBenchmark, c.benchHistoryURL)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error parsing benchmark CSV: %w", err)
	}

	closes := make([]float64, 0, len(records))
	for _, rec := range records {
		if len(rec) < 5 || strings.EqualFold(rec[0], "Date") {
			continue
		}
		v, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			continue
		}
		closes = append(closes, v)
	}

	if len(closes) == 0 {
		return nil, fmt.Errorf("no close rows in benchmark feed")
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// GetDailyCloses fetches the last n daily closing prices for a symbol
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	klines, err := c.GetKlines(ctx, symbol, "1d", days)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes, nil
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return asFloat(v)
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseFloatString(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
