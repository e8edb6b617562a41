package advisor

import (
	"sync"

	"market-advisor-bot/internal/factors"
)

// State holds the latest cycle output and the last recommendation that was
// actually delivered. The novelty gate compares against the delivered one,
// so suppressed cycles never move the baseline.
type State struct {
	mu           sync.RWMutex
	latest       *Recommendation
	lastNotified *Recommendation
	features     factors.FeatureSet
	hasFeatures  bool
}

func NewState() *State {
	return &State{}
}

// Record stores the output of a completed cycle
func (s *State) Record(fs factors.FeatureSet, rec Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = fs
	s.hasFeatures = true
	s.latest = &rec
}

// MarkNotified moves the delivered-recommendation baseline forward
func (s *State) MarkNotified(rec Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNotified = &rec
}

// Restore seeds the notified baseline, typically from persistence at startup
func (s *State) Restore(rec Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastNotified == nil {
		s.lastNotified = &rec
	}
}

// Latest returns a copy of the most recent recommendation, or nil before
// the first completed cycle
func (s *State) Latest() *Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRec(s.latest)
}

// LastNotified returns a copy of the last delivered recommendation
func (s *State) LastNotified() *Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRec(s.lastNotified)
}

// Features returns the most recent feature set and whether one exists yet
func (s *State) Features() (factors.FeatureSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features, s.hasFeatures
}

func copyRec(rec *Recommendation) *Recommendation {
	if rec == nil {
		return nil
	}
	out := *rec
	if rec.Levels != nil {
		levels := *rec.Levels
		out.Levels = &levels
	}
	return &out
}
