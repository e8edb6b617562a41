package advisor

import (
	"strings"
	"testing"
	"time"

	"market-advisor-bot/internal/factors"
)

// buildFeatureSet constructs a feature set with the given per-slot directions.
// A nil entry marks the slot unavailable.
func buildFeatureSet(dirs map[factors.Kind]factors.Direction) factors.FeatureSet {
	fs := factors.FeatureSet{CapturedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	for k := factors.Kind(0); k < factors.NumKinds; k++ {
		dir, ok := dirs[k]
		if !ok {
			fs.Factors[k] = factors.Factor{Kind: k, Name: k.String(), Evidence: "source down"}
			continue
		}
		fs.Factors[k] = factors.Factor{
			Kind:      k,
			Name:      k.String(),
			Direction: dir,
			Evidence:  "test evidence",
			Available: true,
		}
	}
	return fs
}

func allPopulated(dirs ...factors.Direction) factors.FeatureSet {
	m := make(map[factors.Kind]factors.Direction)
	for i, d := range dirs {
		m[factors.Kind(i)] = d
	}
	return buildFeatureSet(m)
}

func TestSynthesizeStrongBuy(t *testing.T) {
	fs := allPopulated(
		factors.Bullish, factors.Bullish, factors.Bullish, factors.Bullish,
		factors.Neutral, factors.Neutral, factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != StrongBuy {
		t.Errorf("expected STRONG_BUY, got %s", rec.Signal)
	}
	if rec.BullishCount != 4 || rec.BearishCount != 0 {
		t.Errorf("unexpected counts: %d bullish, %d bearish", rec.BullishCount, rec.BearishCount)
	}
	if rec.PopulatedCount != 7 {
		t.Errorf("expected 7 populated, got %d", rec.PopulatedCount)
	}
}

func TestSynthesizeBuyOnNarrowMargin(t *testing.T) {
	fs := allPopulated(
		factors.Bullish, factors.Bullish, factors.Bearish, factors.Neutral,
		factors.Neutral, factors.Neutral, factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != Buy {
		t.Errorf("expected BUY for net +1, got %s", rec.Signal)
	}
}

func TestSynthesizeStrongSell(t *testing.T) {
	fs := allPopulated(
		factors.Bearish, factors.Bearish, factors.Bearish, factors.Bearish,
		factors.Bullish, factors.Neutral, factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != StrongSell {
		t.Errorf("expected STRONG_SELL for net -3, got %s", rec.Signal)
	}
}

func TestSynthesizeSellOnNarrowMargin(t *testing.T) {
	fs := allPopulated(
		factors.Bearish, factors.Bearish, factors.Bullish, factors.Neutral,
		factors.Neutral, factors.Neutral, factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != Sell {
		t.Errorf("expected SELL for net -1, got %s", rec.Signal)
	}
}

func TestSynthesizeTieIsAlwaysHold(t *testing.T) {
	fs := allPopulated(
		factors.Bullish, factors.Bullish, factors.Bullish,
		factors.Bearish, factors.Bearish, factors.Bearish,
		factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != Hold {
		t.Errorf("expected HOLD on a 3-3 tie, got %s", rec.Signal)
	}
	if rec.Levels != nil {
		t.Error("HOLD must not carry trade levels")
	}
}

func TestSynthesizeAllNeutral(t *testing.T) {
	fs := allPopulated(
		factors.Neutral, factors.Neutral, factors.Neutral, factors.Neutral,
		factors.Neutral, factors.Neutral, factors.Neutral,
	)

	rec := Synthesize(fs)

	if rec.Signal != Hold {
		t.Errorf("expected HOLD, got %s", rec.Signal)
	}
}

func TestSynthesizeAllUnavailable(t *testing.T) {
	fs := buildFeatureSet(nil)

	rec := Synthesize(fs)

	if rec.Signal != Hold {
		t.Errorf("expected HOLD with no data, got %s", rec.Signal)
	}
	if rec.Confidence != 1 {
		t.Errorf("expected confidence 1 with no data, got %d", rec.Confidence)
	}
	if !strings.Contains(rec.Reasoning, "insufficient data") {
		t.Errorf("reasoning should flag insufficient data, got %q", rec.Reasoning)
	}
}

func TestSynthesizeConfidenceWithinBounds(t *testing.T) {
	cases := []factors.FeatureSet{
		allPopulated(factors.Bullish, factors.Bullish, factors.Bullish, factors.Bullish,
			factors.Bullish, factors.Bullish, factors.Bullish),
		allPopulated(factors.Bearish, factors.Bearish, factors.Bearish, factors.Bearish,
			factors.Bearish, factors.Bearish, factors.Bearish),
		buildFeatureSet(map[factors.Kind]factors.Direction{
			factors.KindSentiment: factors.Bullish,
		}),
		buildFeatureSet(nil),
	}

	for i, fs := range cases {
		rec := Synthesize(fs)
		if rec.Confidence < 1 || rec.Confidence > 10 {
			t.Errorf("case %d: confidence %d out of [1,10]", i, rec.Confidence)
		}
	}
}

func TestSynthesizeUnavailablePenalty(t *testing.T) {
	full := allPopulated(
		factors.Bullish, factors.Bullish, factors.Bullish, factors.Bullish,
		factors.Neutral, factors.Neutral, factors.Neutral,
	)
	partial := buildFeatureSet(map[factors.Kind]factors.Direction{
		factors.KindSentiment:     factors.Bullish,
		factors.KindSeasonal:      factors.Bullish,
		factors.KindMacro:         factors.Bullish,
		factors.KindCorrelation:   factors.Bullish,
		factors.KindInstitutional: factors.Neutral,
	})

	fullRec := Synthesize(full)
	partialRec := Synthesize(partial)

	if partialRec.Confidence >= fullRec.Confidence {
		t.Errorf("missing factors should lower confidence: full=%d partial=%d",
			fullRec.Confidence, partialRec.Confidence)
	}
}

func TestSynthesizeLevelsFromTechnical(t *testing.T) {
	fs := allPopulated(
		factors.Bullish, factors.Bullish, factors.Bullish, factors.Bullish,
		factors.Neutral, factors.Bullish, factors.Neutral,
	)
	fs.Factors[factors.KindTechnical].Prices = &factors.PriceMarks{
		Close:      50000,
		Support:    48000,
		Resistance: 53000,
	}

	rec := Synthesize(fs)

	if rec.Levels == nil {
		t.Fatal("expected levels on an actionable signal with technical prices")
	}
	if rec.Levels.Entry != 50000 {
		t.Errorf("expected entry at close 50000, got %.2f", rec.Levels.Entry)
	}
	if rec.Levels.StopLoss >= rec.Levels.Entry {
		t.Errorf("long stop %.2f should sit below entry %.2f", rec.Levels.StopLoss, rec.Levels.Entry)
	}
	if rec.Levels.Target1 <= rec.Levels.Entry || rec.Levels.Target2 <= rec.Levels.Target1 {
		t.Errorf("long targets should ladder upward: %.2f / %.2f", rec.Levels.Target1, rec.Levels.Target2)
	}
}

func TestSynthesizeShortLevelsInvert(t *testing.T) {
	fs := allPopulated(
		factors.Bearish, factors.Bearish, factors.Bearish, factors.Bearish,
		factors.Neutral, factors.Bearish, factors.Neutral,
	)
	fs.Factors[factors.KindTechnical].Prices = &factors.PriceMarks{
		Close:      50000,
		Support:    48000,
		Resistance: 53000,
	}

	rec := Synthesize(fs)

	if rec.Levels == nil {
		t.Fatal("expected levels on an actionable short signal")
	}
	if rec.Levels.StopLoss <= rec.Levels.Entry {
		t.Errorf("short stop %.2f should sit above entry %.2f", rec.Levels.StopLoss, rec.Levels.Entry)
	}
	if rec.Levels.Target1 >= rec.Levels.Entry {
		t.Errorf("short target %.2f should sit below entry %.2f", rec.Levels.Target1, rec.Levels.Entry)
	}
}

func TestSynthesizeNoLevelsWithoutTechnical(t *testing.T) {
	fs := buildFeatureSet(map[factors.Kind]factors.Direction{
		factors.KindSentiment:   factors.Bullish,
		factors.KindSeasonal:    factors.Bullish,
		factors.KindMacro:       factors.Bullish,
		factors.KindCorrelation: factors.Bullish,
	})

	rec := Synthesize(fs)

	if !rec.Signal.Bullish() {
		t.Fatalf("expected a bullish signal, got %s", rec.Signal)
	}
	if rec.Levels != nil {
		t.Error("levels require the technical factor's price marks")
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	fs := allPopulated(
		factors.Bullish, factors.Bearish, factors.Bullish, factors.Neutral,
		factors.Bullish, factors.Neutral, factors.Bearish,
	)

	first := Synthesize(fs)
	second := Synthesize(fs)

	if first.Signal != second.Signal || first.Confidence != second.Confidence {
		t.Errorf("same input must give same output: %s/%d vs %s/%d",
			first.Signal, first.Confidence, second.Signal, second.Confidence)
	}
	if first.Reasoning != second.Reasoning {
		t.Error("reasoning should be deterministic")
	}
}
