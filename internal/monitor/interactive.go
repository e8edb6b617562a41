package monitor

import (
	"context"
	"fmt"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/factors"
	"market-advisor-bot/internal/logging"
)

// Answerer responds to free-form subscriber questions
type Answerer interface {
	Answer(ctx context.Context, question string, rec *advisor.Recommendation, fs factors.FeatureSet, hasFeatures bool) (string, error)
	IsEnabled() bool
}

// Interactive serves on-demand analysis and Q&A. It shares the collector
// and state with the monitor but never touches the notified baseline, so
// interactive use cannot open or close the novelty gate.
type Interactive struct {
	collector Collector
	state     *advisor.State
	narrator  Narrator
	answerer  Answerer
	timeout   Config
	logger    *logging.Logger
}

// NewInteractive creates the interactive query handler
func NewInteractive(collector Collector, state *advisor.State, narrator Narrator, answerer Answerer, config Config) *Interactive {
	return &Interactive{
		collector: collector,
		state:     state,
		narrator:  narrator,
		answerer:  answerer,
		timeout:   config,
		logger:    logging.WithComponent("interactive"),
	}
}

// Analyze runs a fresh collect-and-synthesize on demand and returns the
// recommendation together with its message text.
func (i *Interactive) Analyze(ctx context.Context) (advisor.Recommendation, string) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout.CycleTimeout)
	defer cancel()

	fs := i.collector.Collect(ctx)
	rec := advisor.Synthesize(fs)
	i.state.Record(fs, rec)

	i.logger.Info("on-demand analysis",
		"signal", rec.Signal.String(),
		"confidence", rec.Confidence)

	message := ComposeAdvisory(rec, nil)
	if i.narrator != nil && i.narrator.IsEnabled() {
		if narrative, err := i.narrator.Narrative(ctx, rec, fs); err == nil {
			message = ComposeAdvisory(rec, narrative)
		}
	}

	return rec, message
}

// Ask answers a free-form question against the latest advisory state. When
// the LLM is unavailable it degrades to a deterministic status line.
func (i *Interactive) Ask(ctx context.Context, question string) string {
	rec := i.state.Latest()
	fs, hasFeatures := i.state.Features()

	if i.answerer != nil && i.answerer.IsEnabled() {
		answer, err := i.answerer.Answer(ctx, question, rec, fs, hasFeatures)
		if err == nil {
			return answer
		}
		i.logger.Warn("question answering failed", "error", err.Error())
	}

	if rec == nil {
		return "No analysis has been run yet. Use /analyze to get a fresh read."
	}
	return fmt.Sprintf("I can't reach the assistant right now. The current read is %s with confidence %d/10.\n\n%s",
		rec.Signal, rec.Confidence, rec.Reasoning)
}
