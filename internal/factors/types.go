// Package factors collects and normalizes the analytical inputs feeding the
// confluence synthesizer. Each of the seven factor slots is fetched from an
// independent source; a source failure marks that slot unavailable and never
// aborts a collection.
package factors

import (
	"time"
)

// Direction is a factor's coarse directional lean
type Direction int

const (
	Neutral Direction = iota
	Bullish
	Bearish
)

func (d Direction) String() string {
	switch d {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "neutral"
	}
}

// Kind identifies one of the seven factor slots
type Kind int

const (
	KindSentiment Kind = iota
	KindSeasonal
	KindMacro
	KindCorrelation
	KindInstitutional
	KindTechnical
	KindReserved

	NumKinds = 7
)

func (k Kind) String() string {
	switch k {
	case KindSentiment:
		return "sentiment"
	case KindSeasonal:
		return "seasonal"
	case KindMacro:
		return "macro"
	case KindCorrelation:
		return "correlation"
	case KindInstitutional:
		return "institutional"
	case KindTechnical:
		return "technical"
	case KindReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// PriceMarks carries the technical factor's price evidence, used downstream
// to derive trade levels. Only the technical fetcher populates it.
type PriceMarks struct {
	Close      float64
	Support    float64
	Resistance float64
}

// Factor is one normalized analytical input. Immutable once produced.
type Factor struct {
	Kind      Kind
	Name      string
	Value     float64 // Bounded per factor semantics (0-100 index, -1..1 ratio, ...)
	Direction Direction
	Evidence  string
	Available bool
	Prices    *PriceMarks
}

// FeatureSet is the full set of seven factor slots captured at one instant.
// Every slot is present; unavailable slots carry Available=false.
type FeatureSet struct {
	CapturedAt time.Time
	Factors    [NumKinds]Factor
}

// Factor returns the slot for the given kind
func (fs *FeatureSet) Factor(k Kind) Factor {
	return fs.Factors[k]
}

// Counts returns the bullish, bearish and populated slot counts
func (fs *FeatureSet) Counts() (bullish, bearish, populated int) {
	for _, f := range fs.Factors {
		if !f.Available {
			continue
		}
		populated++
		switch f.Direction {
		case Bullish:
			bullish++
		case Bearish:
			bearish++
		}
	}
	return bullish, bearish, populated
}

// Unavailable returns the number of unavailable slots
func (fs *FeatureSet) Unavailable() int {
	_, _, populated := fs.Counts()
	return NumKinds - populated
}

func unavailable(k Kind, name, reason string) Factor {
	return Factor{Kind: k, Name: name, Evidence: reason, Available: false}
}
