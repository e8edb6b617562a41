package advisor

import (
	"fmt"
	"strings"
	"time"

	"market-advisor-bot/internal/factors"
)

// Signal is the directional strength of a recommendation
type Signal int

const (
	StrongSell Signal = iota - 2
	Sell
	Hold
	Buy
	StrongBuy
)

func (s Signal) String() string {
	switch s {
	case StrongBuy:
		return "STRONG_BUY"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case StrongSell:
		return "STRONG_SELL"
	default:
		return "HOLD"
	}
}

// Actionable reports whether the signal implies taking a position
func (s Signal) Actionable() bool {
	return s != Hold
}

// Bullish reports whether the signal leans long
func (s Signal) Bullish() bool {
	return s == Buy || s == StrongBuy
}

// Levels are the suggested price marks attached to an actionable signal
type Levels struct {
	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stop_loss"`
	Target1  float64 `json:"target_1"`
	Target2  float64 `json:"target_2"`
}

// Recommendation is the synthesized output of one advisory cycle
type Recommendation struct {
	Timestamp      time.Time `json:"timestamp"`
	Signal         Signal    `json:"signal"`
	BullishCount   int       `json:"bullish_count"`
	BearishCount   int       `json:"bearish_count"`
	PopulatedCount int       `json:"populated_count"`
	Confidence     int       `json:"confidence"`
	Levels         *Levels   `json:"levels,omitempty"`
	Reasoning      string    `json:"reasoning"`
}

// Confluence thresholds on the bullish-minus-bearish margin
const (
	strongMargin = 3
	leanMargin   = 1

	maxConfidence = 10
	minConfidence = 1
)

// Synthesize folds a feature set into a recommendation. It is a pure
// function of its input: same factors, same recommendation.
func Synthesize(fs factors.FeatureSet) Recommendation {
	bullish, bearish, populated := fs.Counts()

	rec := Recommendation{
		Timestamp:      fs.CapturedAt,
		BullishCount:   bullish,
		BearishCount:   bearish,
		PopulatedCount: populated,
	}

	if populated == 0 {
		rec.Signal = Hold
		rec.Confidence = minConfidence
		rec.Reasoning = "insufficient data: no market factors available"
		return rec
	}

	net := bullish - bearish
	switch {
	case bullish == bearish:
		// A tie is never actionable regardless of how it nets out
		rec.Signal = Hold
	case net >= strongMargin:
		rec.Signal = StrongBuy
	case net >= leanMargin:
		rec.Signal = Buy
	case net <= -strongMargin:
		rec.Signal = StrongSell
	case net <= -leanMargin:
		rec.Signal = Sell
	default:
		rec.Signal = Hold
	}

	confidence := 5 + net
	if rec.Signal == Hold {
		confidence = 5 - abs(net)
	}
	confidence -= factors.NumKinds - populated
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}
	rec.Confidence = confidence

	if rec.Signal.Actionable() {
		rec.Levels = buildLevels(fs, rec.Signal)
	}
	rec.Reasoning = buildReasoning(fs, rec)

	return rec
}

// buildLevels derives trade levels from the technical factor's price marks.
// Without price marks the recommendation carries no levels.
func buildLevels(fs factors.FeatureSet, sig Signal) *Levels {
	tech := fs.Factor(factors.KindTechnical)
	if !tech.Available || tech.Prices == nil {
		return nil
	}
	p := tech.Prices

	if sig.Bullish() {
		return &Levels{
			Entry:    p.Close,
			StopLoss: p.Support * 0.99,
			Target1:  p.Resistance,
			Target2:  p.Resistance * 1.05,
		}
	}
	return &Levels{
		Entry:    p.Close,
		StopLoss: p.Resistance * 1.01,
		Target1:  p.Support,
		Target2:  p.Support * 0.95,
	}
}

func buildReasoning(fs factors.FeatureSet, rec Recommendation) string {
	var parts []string
	for k := factors.Kind(0); k < factors.NumKinds; k++ {
		f := fs.Factor(k)
		if !f.Available || f.Direction == factors.Neutral {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Evidence))
	}

	summary := fmt.Sprintf("%d bullish vs %d bearish across %d factors",
		rec.BullishCount, rec.BearishCount, rec.PopulatedCount)
	if missing := factors.NumKinds - rec.PopulatedCount; missing > 0 {
		summary += fmt.Sprintf(" (%d unavailable)", missing)
	}

	if len(parts) == 0 {
		return summary
	}
	return summary + ". " + strings.Join(parts, "; ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
