package factors

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"market-advisor-bot/internal/logging"
	"market-advisor-bot/internal/marketdata"
)

// Classification thresholds. The 20/80 extremes are the contrarian bounds;
// 45/55 mark the milder fear/greed leans.
const (
	extremeFearMax  = 20
	fearMax         = 45
	greedMin        = 55
	extremeGreedMin = 80

	flowBullishMin = 1.1
	flowBearishMax = 0.9

	correlationMin = 0.3
	macroMoveMin   = 0.2 // percent day change considered a trend
)

// MarketData is the slice of the data client the collector depends on
type MarketData interface {
	GetFearGreed(ctx context.Context) (*marketdata.FearGreed, error)
	GetMacroQuote(ctx context.Context) (*marketdata.MacroQuote, error)
	GetTakerFlowRatio(ctx context.Context, symbol string) (*marketdata.FlowRatio, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Kline, error)
	GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
	GetBenchmarkCloses(ctx context.Context, days int) ([]float64, error)
}

// Config holds collector configuration
type Config struct {
	Symbol          string
	FetchTimeout    time.Duration
	CorrelationDays int
}

// Collector assembles a FeatureSet from the external sources. It holds no
// mutable state between collections and is safe for concurrent use.
type Collector struct {
	data     MarketData
	symbol   string
	timeout  time.Duration
	corrDays int
	now      func() time.Time
}

func NewCollector(data MarketData, cfg Config) *Collector {
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	corrDays := cfg.CorrelationDays
	if corrDays == 0 {
		corrDays = 30
	}
	return &Collector{
		data:     data,
		symbol:   cfg.Symbol,
		timeout:  timeout,
		corrDays: corrDays,
		now:      time.Now,
	}
}

// Collect assembles the seven factor slots concurrently. Each fetch runs
// under its own timeout; a failure degrades that slot to unavailable.
// Collect always returns a complete FeatureSet.
func (c *Collector) Collect(ctx context.Context) FeatureSet {
	fs := FeatureSet{CapturedAt: c.now()}

	fetchers := [NumKinds]func(context.Context) Factor{
		KindSentiment:     c.collectSentiment,
		KindSeasonal:      c.collectSeasonal,
		KindMacro:         c.collectMacro,
		KindCorrelation:   c.collectCorrelation,
		KindInstitutional: c.collectInstitutional,
		KindTechnical:     c.collectTechnical,
		KindReserved:      c.collectReserved,
	}

	var wg sync.WaitGroup
	for kind, fetch := range fetchers {
		wg.Add(1)
		go func(k Kind, fetch func(context.Context) Factor) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			f := fetch(fetchCtx)
			if !f.Available {
				logging.FactorContext(k.String()).Warn("factor unavailable", "reason", f.Evidence)
			}
			fs.Factors[k] = f // Each goroutine owns exactly one slot
		}(Kind(kind), fetch)
	}
	wg.Wait()

	return fs
}

func (c *Collector) collectSentiment(ctx context.Context) Factor {
	fg, err := c.data.GetFearGreed(ctx)
	if err != nil {
		return unavailable(KindSentiment, "Fear & Greed", err.Error())
	}

	f := Factor{
		Kind:      KindSentiment,
		Name:      "Fear & Greed",
		Value:     float64(fg.Value),
		Available: true,
	}

	// Contrarian read: fear is an entry, greed is a distribution zone
	switch {
	case fg.Value <= extremeFearMax:
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("extreme fear at %d (%s), strong contrarian buy zone", fg.Value, fg.Classification)
	case fg.Value <= fearMax:
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("fear at %d (%s), contrarian opportunity", fg.Value, fg.Classification)
	case fg.Value >= extremeGreedMin:
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("extreme greed at %d (%s), distribution zone", fg.Value, fg.Classification)
	case fg.Value >= greedMin:
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("building greed at %d (%s), caution warranted", fg.Value, fg.Classification)
	default:
		f.Direction = Neutral
		f.Evidence = fmt.Sprintf("neutral sentiment at %d (%s)", fg.Value, fg.Classification)
	}

	return f
}

func (c *Collector) collectSeasonal(_ context.Context) Factor {
	month := c.now().Month()
	p := seasonalFor(month)

	return Factor{
		Kind:      KindSeasonal,
		Name:      "Seasonality",
		Value:     float64(p.WinRate),
		Direction: p.Bias,
		Evidence:  fmt.Sprintf("%s pattern for %s (%d%% historical win rate)", p.Pattern, month, p.WinRate),
		Available: true,
	}
}

func (c *Collector) collectMacro(ctx context.Context) Factor {
	quote, err := c.data.GetMacroQuote(ctx)
	if err != nil {
		return unavailable(KindMacro, "Dollar Index", err.Error())
	}

	f := Factor{
		Kind:      KindMacro,
		Name:      "Dollar Index",
		Value:     quote.Close,
		Available: true,
	}

	change := 0.0
	if quote.Open != 0 {
		change = (quote.Close - quote.Open) / quote.Open * 100
	}

	// A rising dollar is a risk-off headwind for BTC, a falling one a tailwind
	switch {
	case change >= macroMoveMin:
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("DXY %.2f up %.2f%% on the day, risk-off pressure", quote.Close, change)
	case change <= -macroMoveMin:
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("DXY %.2f down %.2f%% on the day, risk-on environment", quote.Close, -change)
	default:
		f.Direction = Neutral
		f.Evidence = fmt.Sprintf("DXY flat at %.2f", quote.Close)
	}

	return f
}

func (c *Collector) collectCorrelation(ctx context.Context) Factor {
	btc, err := c.data.GetDailyCloses(ctx, c.symbol, c.corrDays)
	if err != nil {
		return unavailable(KindCorrelation, "Risk Correlation", err.Error())
	}
	bench, err := c.data.GetBenchmarkCloses(ctx, c.corrDays)
	if err != nil {
		return unavailable(KindCorrelation, "Risk Correlation", err.Error())
	}

	r := pearson(btc, bench)

	f := Factor{
		Kind:      KindCorrelation,
		Name:      "Risk Correlation",
		Value:     r,
		Available: true,
	}

	if math.Abs(r) < correlationMin {
		f.Direction = Neutral
		f.Evidence = fmt.Sprintf("BTC decoupled from the risk benchmark (r=%.2f)", r)
		return f
	}

	// With a meaningful coupling, the benchmark's own drift sets the lean:
	// a positively correlated rising benchmark pulls BTC up with it, and an
	// inverse coupling flips the read.
	benchUp := bench[len(bench)-1] >= bench[0]
	lean := benchUp
	if r < 0 {
		lean = !benchUp
	}

	trend := "falling"
	if benchUp {
		trend = "rising"
	}
	if lean {
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("coupled to a %s benchmark (r=%.2f), supportive drift", trend, r)
	} else {
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("coupled to a %s benchmark (r=%.2f), adverse drift", trend, r)
	}

	return f
}

func (c *Collector) collectInstitutional(ctx context.Context) Factor {
	flow, err := c.data.GetTakerFlowRatio(ctx, c.symbol)
	if err != nil {
		return unavailable(KindInstitutional, "Taker Flow", err.Error())
	}

	f := Factor{
		Kind:      KindInstitutional,
		Name:      "Taker Flow",
		Value:     flow.BuySellRatio,
		Available: true,
	}

	switch {
	case flow.BuySellRatio >= flowBullishMin:
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("taker buy/sell ratio %.2f, net buying pressure", flow.BuySellRatio)
	case flow.BuySellRatio <= flowBearishMax:
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("taker buy/sell ratio %.2f, net selling pressure", flow.BuySellRatio)
	default:
		f.Direction = Neutral
		f.Evidence = fmt.Sprintf("taker buy/sell ratio %.2f, balanced flow", flow.BuySellRatio)
	}

	return f
}

func (c *Collector) collectTechnical(ctx context.Context) Factor {
	klines, err := c.data.GetKlines(ctx, c.symbol, "1d", 60)
	if err != nil {
		return unavailable(KindTechnical, "Technicals", err.Error())
	}
	if len(klines) < 51 {
		return unavailable(KindTechnical, "Technicals", fmt.Sprintf("only %d daily candles available", len(klines)))
	}

	sma20 := calculateSMA(klines, 20)
	sma50 := calculateSMA(klines, 50)
	rsi := calculateRSI(klines, 14)
	support, resistance := swingLevels(klines, 20)
	lastClose := klines[len(klines)-1].Close

	f := Factor{
		Kind:      KindTechnical,
		Name:      "Technicals",
		Value:     rsi,
		Available: true,
		Prices: &PriceMarks{
			Close:      lastClose,
			Support:    support,
			Resistance: resistance,
		},
	}

	switch {
	case lastClose > sma20 && sma20 > sma50:
		f.Direction = Bullish
		f.Evidence = fmt.Sprintf("price %.0f above rising SMAs (20: %.0f, 50: %.0f), RSI %.0f", lastClose, sma20, sma50, rsi)
	case lastClose < sma20 && sma20 < sma50:
		f.Direction = Bearish
		f.Evidence = fmt.Sprintf("price %.0f below falling SMAs (20: %.0f, 50: %.0f), RSI %.0f", lastClose, sma20, sma50, rsi)
	default:
		f.Direction = Neutral
		f.Evidence = fmt.Sprintf("price %.0f between SMAs (20: %.0f, 50: %.0f), RSI %.0f", lastClose, sma20, sma50, rsi)
	}

	return f
}

func (c *Collector) collectReserved(_ context.Context) Factor {
	// Slot held for a future factor source
	return unavailable(KindReserved, "Reserved", "no source assigned")
}
