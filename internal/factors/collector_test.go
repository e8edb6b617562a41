package factors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"market-advisor-bot/internal/marketdata"
)

// ============================================================================
// Stub market data source
// ============================================================================

type stubMarketData struct {
	fearGreed    *marketdata.FearGreed
	fearGreedErr error

	macroQuote    *marketdata.MacroQuote
	macroQuoteErr error

	flowRatio    *marketdata.FlowRatio
	flowRatioErr error

	klines    []marketdata.Kline
	klinesErr error

	dailyCloses    []float64
	dailyClosesErr error

	benchCloses    []float64
	benchClosesErr error
}

func (s *stubMarketData) GetFearGreed(_ context.Context) (*marketdata.FearGreed, error) {
	return s.fearGreed, s.fearGreedErr
}

func (s *stubMarketData) GetMacroQuote(_ context.Context) (*marketdata.MacroQuote, error) {
	return s.macroQuote, s.macroQuoteErr
}

func (s *stubMarketData) GetTakerFlowRatio(_ context.Context, _ string) (*marketdata.FlowRatio, error) {
	return s.flowRatio, s.flowRatioErr
}

func (s *stubMarketData) GetKlines(_ context.Context, _, _ string, _ int) ([]marketdata.Kline, error) {
	return s.klines, s.klinesErr
}

func (s *stubMarketData) GetDailyCloses(_ context.Context, _ string, _ int) ([]float64, error) {
	return s.dailyCloses, s.dailyClosesErr
}

func (s *stubMarketData) GetBenchmarkCloses(_ context.Context, _ int) ([]float64, error) {
	return s.benchCloses, s.benchClosesErr
}

func healthyStub() *stubMarketData {
	return &stubMarketData{
		fearGreed:   &marketdata.FearGreed{Value: 30, Classification: "Fear"},
		macroQuote:  &marketdata.MacroQuote{Symbol: "DX-Y.NYB", Open: 104.0, Close: 103.5},
		flowRatio:   &marketdata.FlowRatio{BuySellRatio: 1.25, BuyVolume: 1250, SellVolume: 1000},
		klines:      risingKlines(60),
		dailyCloses: rampSeries(30, 48000, 100),
		benchCloses: rampSeries(30, 5000, 10),
	}
}

func risingKlines(n int) []marketdata.Kline {
	klines := make([]marketdata.Kline, n)
	for i := range klines {
		base := 45000 + float64(i)*120
		klines[i] = marketdata.Kline{
			OpenTime: int64(i) * 86400000,
			Open:     base,
			High:     base + 200,
			Low:      base - 200,
			Close:    base + 100,
			Volume:   1500,
		}
	}
	return klines
}

func rampSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func newTestCollector(data MarketData, month time.Month) *Collector {
	c := NewCollector(data, Config{Symbol: "BTCUSDT", FetchTimeout: time.Second})
	c.now = func() time.Time {
		return time.Date(2026, month, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

// ============================================================================
// Collect
// ============================================================================

func TestCollectPopulatesEverySlot(t *testing.T) {
	c := newTestCollector(healthyStub(), time.March)

	fs := c.Collect(context.Background())

	for k := Kind(0); k < NumKinds; k++ {
		if fs.Factors[k].Kind != k {
			t.Errorf("slot %d holds kind %d", k, fs.Factors[k].Kind)
		}
		if fs.Factors[k].Name == "" {
			t.Errorf("slot %s has no name", k)
		}
	}
	if fs.CapturedAt.IsZero() {
		t.Error("CapturedAt should be set")
	}
}

func TestCollectDegradesFailedSlots(t *testing.T) {
	stub := healthyStub()
	stub.fearGreedErr = errors.New("upstream timeout")
	stub.flowRatioErr = errors.New("upstream timeout")
	c := newTestCollector(stub, time.March)

	fs := c.Collect(context.Background())

	if fs.Factors[KindSentiment].Available {
		t.Error("sentiment should be unavailable when its source fails")
	}
	if fs.Factors[KindInstitutional].Available {
		t.Error("institutional flow should be unavailable when its source fails")
	}
	if !fs.Factors[KindSeasonal].Available || !fs.Factors[KindMacro].Available {
		t.Error("healthy slots must survive other sources failing")
	}
}

func TestCollectAllSourcesDown(t *testing.T) {
	down := errors.New("connection refused")
	stub := &stubMarketData{
		fearGreedErr: down, macroQuoteErr: down, flowRatioErr: down,
		klinesErr: down, dailyClosesErr: down, benchClosesErr: down,
	}
	c := newTestCollector(stub, time.April)

	fs := c.Collect(context.Background())

	// Seasonality needs no network and April is a neutral month
	_, _, populated := fs.Counts()
	if populated != 1 {
		t.Errorf("expected only the seasonal slot populated, got %d", populated)
	}
	if !fs.Factors[KindSeasonal].Available {
		t.Error("seasonal slot should not depend on any source")
	}
}

func TestCollectReservedAlwaysUnavailable(t *testing.T) {
	c := newTestCollector(healthyStub(), time.March)

	fs := c.Collect(context.Background())

	reserved := fs.Factor(KindReserved)
	if reserved.Available {
		t.Error("reserved slot must stay unavailable")
	}
	if !strings.Contains(reserved.Evidence, "no source assigned") {
		t.Errorf("unexpected reserved evidence: %q", reserved.Evidence)
	}
}

// ============================================================================
// Sentiment classification
// ============================================================================

func TestSentimentThresholds(t *testing.T) {
	cases := []struct {
		value int
		want  Direction
	}{
		{10, Bullish}, // extreme fear
		{20, Bullish},
		{35, Bullish}, // fear
		{45, Bullish},
		{50, Neutral},
		{55, Bearish}, // greed
		{79, Bearish},
		{80, Bearish}, // extreme greed
		{95, Bearish},
	}

	for _, tc := range cases {
		stub := healthyStub()
		stub.fearGreed = &marketdata.FearGreed{Value: tc.value, Classification: "test"}
		c := newTestCollector(stub, time.March)

		f := c.collectSentiment(context.Background())
		if f.Direction != tc.want {
			t.Errorf("F&G %d: expected %v, got %v", tc.value, tc.want, f.Direction)
		}
		if f.Value != float64(tc.value) {
			t.Errorf("F&G %d: value not carried through", tc.value)
		}
	}
}

// ============================================================================
// Seasonality
// ============================================================================

func TestSeasonalBiasByMonth(t *testing.T) {
	cases := []struct {
		month time.Month
		want  Direction
	}{
		{time.November, Bullish},
		{time.December, Bullish},
		{time.June, Bearish},
		{time.September, Bearish},
		{time.October, Neutral},
	}

	for _, tc := range cases {
		c := newTestCollector(healthyStub(), tc.month)
		f := c.collectSeasonal(context.Background())

		if f.Direction != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.month, tc.want, f.Direction)
		}
		if !f.Available {
			t.Errorf("%s: seasonal slot should always be available", tc.month)
		}
	}
}

// ============================================================================
// Macro (dollar index)
// ============================================================================

func TestMacroDayChangeThresholds(t *testing.T) {
	cases := []struct {
		open  float64
		close float64
		want  Direction
	}{
		{104.0, 104.5, Bearish}, // dollar up ~0.5%
		{104.0, 103.5, Bullish}, // dollar down ~0.5%
		{104.0, 104.05, Neutral},
		{104.0, 103.95, Neutral},
	}

	for _, tc := range cases {
		stub := healthyStub()
		stub.macroQuote = &marketdata.MacroQuote{Open: tc.open, Close: tc.close}
		c := newTestCollector(stub, time.March)

		f := c.collectMacro(context.Background())
		if f.Direction != tc.want {
			t.Errorf("DXY %.2f -> %.2f: expected %v, got %v", tc.open, tc.close, tc.want, f.Direction)
		}
	}
}

func TestMacroZeroOpenIsNeutral(t *testing.T) {
	stub := healthyStub()
	stub.macroQuote = &marketdata.MacroQuote{Open: 0, Close: 104.0}
	c := newTestCollector(stub, time.March)

	f := c.collectMacro(context.Background())
	if f.Direction != Neutral {
		t.Errorf("a zero open must not divide: got %v", f.Direction)
	}
}

// ============================================================================
// Correlation
// ============================================================================

func TestCorrelationCoupledRisingBenchmark(t *testing.T) {
	stub := healthyStub()
	stub.dailyCloses = rampSeries(30, 48000, 100)
	stub.benchCloses = rampSeries(30, 5000, 10)
	c := newTestCollector(stub, time.March)

	f := c.collectCorrelation(context.Background())

	if f.Direction != Bullish {
		t.Errorf("positive coupling to a rising benchmark should lean bullish, got %v", f.Direction)
	}
	if f.Value < 0.99 {
		t.Errorf("two ramps should correlate near 1, got %.2f", f.Value)
	}
}

func TestCorrelationCoupledFallingBenchmark(t *testing.T) {
	stub := healthyStub()
	stub.dailyCloses = rampSeries(30, 48000, -100)
	stub.benchCloses = rampSeries(30, 5000, -10)
	c := newTestCollector(stub, time.March)

	f := c.collectCorrelation(context.Background())

	if f.Direction != Bearish {
		t.Errorf("positive coupling to a falling benchmark should lean bearish, got %v", f.Direction)
	}
}

func TestCorrelationInverseCouplingFlipsLean(t *testing.T) {
	stub := healthyStub()
	stub.dailyCloses = rampSeries(30, 48000, 100)
	stub.benchCloses = rampSeries(30, 5000, -10)
	c := newTestCollector(stub, time.March)

	f := c.collectCorrelation(context.Background())

	// Inverse coupling to a falling benchmark is supportive for BTC
	if f.Direction != Bullish {
		t.Errorf("inverse coupling to a falling benchmark should lean bullish, got %v", f.Direction)
	}
	if f.Value > -0.99 {
		t.Errorf("opposed ramps should correlate near -1, got %.2f", f.Value)
	}
}

func TestCorrelationDecoupledIsNeutral(t *testing.T) {
	stub := healthyStub()
	// Flat benchmark carries no correlation signal
	stub.benchCloses = rampSeries(30, 5000, 0)
	c := newTestCollector(stub, time.March)

	f := c.collectCorrelation(context.Background())

	if f.Direction != Neutral {
		t.Errorf("expected neutral on a decoupled pair, got %v", f.Direction)
	}
}

// ============================================================================
// Institutional flow
// ============================================================================

func TestFlowRatioThresholds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Direction
	}{
		{1.30, Bullish},
		{1.10, Bullish},
		{1.05, Neutral},
		{0.95, Neutral},
		{0.90, Bearish},
		{0.70, Bearish},
	}

	for _, tc := range cases {
		stub := healthyStub()
		stub.flowRatio = &marketdata.FlowRatio{BuySellRatio: tc.ratio}
		c := newTestCollector(stub, time.March)

		f := c.collectInstitutional(context.Background())
		if f.Direction != tc.want {
			t.Errorf("ratio %.2f: expected %v, got %v", tc.ratio, tc.want, f.Direction)
		}
	}
}

// ============================================================================
// Technicals
// ============================================================================

func TestTechnicalUptrend(t *testing.T) {
	c := newTestCollector(healthyStub(), time.March)

	f := c.collectTechnical(context.Background())

	if !f.Available {
		t.Fatalf("expected technicals available: %s", f.Evidence)
	}
	if f.Direction != Bullish {
		t.Errorf("rising closes above both SMAs should read bullish, got %v", f.Direction)
	}
	if f.Prices == nil {
		t.Fatal("technicals must carry price marks")
	}
	if f.Prices.Support >= f.Prices.Resistance {
		t.Errorf("support %.0f should sit below resistance %.0f", f.Prices.Support, f.Prices.Resistance)
	}
}

func TestTechnicalDowntrend(t *testing.T) {
	stub := healthyStub()
	klines := risingKlines(60)
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i].Close, klines[j].Close = klines[j].Close, klines[i].Close
		klines[i].High, klines[j].High = klines[j].High, klines[i].High
		klines[i].Low, klines[j].Low = klines[j].Low, klines[i].Low
	}
	stub.klines = klines
	c := newTestCollector(stub, time.March)

	f := c.collectTechnical(context.Background())

	if f.Direction != Bearish {
		t.Errorf("falling closes below both SMAs should read bearish, got %v", f.Direction)
	}
}

func TestTechnicalNeedsEnoughCandles(t *testing.T) {
	stub := healthyStub()
	stub.klines = risingKlines(40)
	c := newTestCollector(stub, time.March)

	f := c.collectTechnical(context.Background())

	if f.Available {
		t.Error("40 candles cannot support a 50-period average")
	}
	if !strings.Contains(f.Evidence, "40") {
		t.Errorf("evidence should report the candle count, got %q", f.Evidence)
	}
}
