package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/ai/llm"
	"market-advisor-bot/internal/events"
	"market-advisor-bot/internal/factors"
	"market-advisor-bot/internal/notification"
)

// ============================================================================
// Stubs
// ============================================================================

type stubCollector struct {
	mu      sync.Mutex
	fs      factors.FeatureSet
	calls   int
	release chan struct{} // when set, Collect blocks until closed
}

func (s *stubCollector) Collect(_ context.Context) factors.FeatureSet {
	s.mu.Lock()
	s.calls++
	release := s.release
	s.mu.Unlock()

	if release != nil {
		<-release
	}
	return s.fs
}

func (s *stubCollector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
	fail bool
}

func (c *captureNotifier) Send(n *notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("delivery refused")
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) Name() string    { return "capture" }
func (c *captureNotifier) IsEnabled() bool { return true }

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type stubNarrator struct {
	narrative *llm.Narrative
	err       error
	enabled   bool
}

func (s *stubNarrator) Narrative(_ context.Context, _ advisor.Recommendation, _ factors.FeatureSet) (*llm.Narrative, error) {
	return s.narrative, s.err
}

func (s *stubNarrator) IsEnabled() bool { return s.enabled }

type stubPersister struct {
	mu     sync.Mutex
	saved  []advisor.Recommendation
	loaded *advisor.Recommendation
}

func (s *stubPersister) SaveLastNotified(_ context.Context, rec advisor.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return nil
}

func (s *stubPersister) LoadLastNotified(_ context.Context) (*advisor.Recommendation, error) {
	return s.loaded, nil
}

type stubHistory struct {
	mu      sync.Mutex
	records []struct {
		cycleID  string
		rec      advisor.Recommendation
		notified bool
	}
}

func (s *stubHistory) RecordCycle(_ context.Context, cycleID string, rec advisor.Recommendation, notified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, struct {
		cycleID  string
		rec      advisor.Recommendation
		notified bool
	}{cycleID, rec, notified})
	return nil
}

func bullishFeatures() factors.FeatureSet {
	fs := factors.FeatureSet{CapturedAt: time.Now()}
	for k := factors.Kind(0); k < 4; k++ {
		fs.Factors[k] = factors.Factor{
			Kind: k, Name: k.String(),
			Direction: factors.Bullish, Evidence: "strongly supportive", Available: true,
		}
	}
	for k := factors.Kind(4); k < factors.NumKinds; k++ {
		fs.Factors[k] = factors.Factor{Kind: k, Name: k.String(), Evidence: "source down"}
	}
	return fs
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		CheckInterval: time.Hour,
		CycleTimeout:  5 * time.Second,
	}
}

func newTestMonitor(collector Collector, persister Persister, history HistoryRecorder) (*Monitor, *advisor.State, *captureNotifier) {
	state := advisor.NewState()
	capture := &captureNotifier{}
	manager := notification.NewManager(true)
	manager.AddNotifier(capture)
	mon := New(collector, state, nil, manager, events.NewEventBus(), persister, history, testConfig())
	return mon, state, capture
}

// ============================================================================
// Cycle behavior
// ============================================================================

func TestRunCycleNotifiesFirstRecommendation(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	mon, state, capture := newTestMonitor(collector, nil, nil)

	mon.RunCycle()

	if capture.count() != 1 {
		t.Fatalf("first cycle should notify, got %d deliveries", capture.count())
	}
	if state.LastNotified() == nil {
		t.Error("a delivered notification must advance the baseline")
	}
	if st := mon.Status(); st.CyclesRun != 1 || st.LastCycleID == "" {
		t.Errorf("status not updated: %+v", st)
	}
}

func TestRunCycleSuppressesUnchangedRecommendation(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	mon, _, capture := newTestMonitor(collector, nil, nil)

	mon.RunCycle()
	mon.RunCycle()

	if capture.count() != 1 {
		t.Errorf("an unchanged recommendation should be suppressed, got %d deliveries", capture.count())
	}
	if st := mon.Status(); st.CyclesRun != 2 {
		t.Errorf("suppressed cycles still count as run, got %d", st.CyclesRun)
	}
}

func TestRunCycleSingleFlight(t *testing.T) {
	release := make(chan struct{})
	collector := &stubCollector{fs: bullishFeatures(), release: release}
	mon, _, _ := newTestMonitor(collector, nil, nil)

	done := make(chan struct{})
	go func() {
		mon.RunCycle()
		close(done)
	}()

	// Wait until the first cycle is inside Collect
	for i := 0; i < 100 && collector.callCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	mon.RunCycle() // should be skipped, not queued
	close(release)
	<-done

	st := mon.Status()
	if st.CyclesRun != 1 {
		t.Errorf("expected 1 completed cycle, got %d", st.CyclesRun)
	}
	if st.CyclesSkipped != 1 {
		t.Errorf("expected 1 skipped cycle, got %d", st.CyclesSkipped)
	}
	if collector.callCount() != 1 {
		t.Errorf("a skipped tick must not collect, got %d calls", collector.callCount())
	}
}

func TestRunCycleFailedDeliveryKeepsBaseline(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	state := advisor.NewState()
	capture := &captureNotifier{fail: true}
	manager := notification.NewManager(true)
	manager.AddNotifier(capture)
	mon := New(collector, state, nil, manager, events.NewEventBus(), nil, nil, testConfig())

	mon.RunCycle()

	if state.LastNotified() != nil {
		t.Error("a failed delivery must not advance the baseline")
	}

	// Next cycle retries against the unchanged baseline
	capture.fail = false
	mon.RunCycle()
	if capture.count() != 1 {
		t.Errorf("recovery cycle should deliver, got %d", capture.count())
	}
}

func TestRunCycleRecordsHistory(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	history := &stubHistory{}
	mon, _, _ := newTestMonitor(collector, nil, history)

	mon.RunCycle()
	mon.RunCycle()

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.records) != 2 {
		t.Fatalf("every cycle should be recorded, got %d", len(history.records))
	}
	if !history.records[0].notified {
		t.Error("first cycle should be recorded as notified")
	}
	if history.records[1].notified {
		t.Error("suppressed cycle should be recorded as not notified")
	}
	if history.records[0].cycleID == history.records[1].cycleID {
		t.Error("cycles must get distinct IDs")
	}
}

func TestRunCyclePersistsNotifiedBaseline(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	persister := &stubPersister{}
	mon, _, _ := newTestMonitor(collector, persister, nil)

	mon.RunCycle()

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.saved) != 1 {
		t.Errorf("delivered recommendation should be persisted, got %d saves", len(persister.saved))
	}
}

func TestStartRestoresBaselineAndSuppresses(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	expected := advisor.Synthesize(bullishFeatures())
	persister := &stubPersister{loaded: &expected}
	mon, state, capture := newTestMonitor(collector, persister, nil)

	mon.Start()
	defer mon.Stop()

	// The immediate first cycle matches the restored baseline
	for i := 0; i < 100 && mon.Status().CyclesRun == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	if capture.count() != 0 {
		t.Errorf("restart must not re-announce an unchanged recommendation, got %d deliveries", capture.count())
	}
	if state.LastNotified() == nil {
		t.Error("baseline should be restored from persistence")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	mon, _, _ := newTestMonitor(collector, nil, nil)

	if mon.IsRunning() {
		t.Error("monitor should start stopped")
	}

	mon.Start()
	if !mon.IsRunning() {
		t.Error("monitor should report running after Start")
	}
	mon.Start() // idempotent

	mon.Stop()
	if mon.IsRunning() {
		t.Error("monitor should report stopped after Stop")
	}
	mon.Stop() // idempotent

	// A restart gets a fresh stop channel
	mon.Start()
	if !mon.IsRunning() {
		t.Error("monitor should restart after a stop")
	}
	mon.Stop()
}

// ============================================================================
// Message composition
// ============================================================================

func TestComposeAdvisoryFallback(t *testing.T) {
	rec := advisor.Recommendation{
		Signal:    advisor.Buy,
		Reasoning: "3 bullish vs 1 bearish across 6 factors",
		Levels:    &advisor.Levels{Entry: 50000, StopLoss: 47520, Target1: 53000, Target2: 55650},
	}

	msg := ComposeAdvisory(rec, nil)

	if !strings.Contains(msg, rec.Reasoning) {
		t.Error("fallback message should carry the deterministic reasoning")
	}
	if !strings.Contains(msg, "Entry: 50000.00") || !strings.Contains(msg, "Stop: 47520.00") {
		t.Errorf("message should carry trade levels:\n%s", msg)
	}
}

func TestComposeAdvisoryWithNarrative(t *testing.T) {
	rec := advisor.Recommendation{Signal: advisor.Hold, Reasoning: "plain reasoning"}
	narrative := &llm.Narrative{
		Headline:   "Markets catch their breath",
		Commentary: "Factors are split with no clear edge.",
		Caution:    "Thin weekend liquidity can exaggerate moves.",
	}

	msg := ComposeAdvisory(rec, narrative)

	if !strings.Contains(msg, narrative.Headline) || !strings.Contains(msg, narrative.Commentary) {
		t.Errorf("message should carry the narrative:\n%s", msg)
	}
	if !strings.Contains(msg, "_Thin weekend liquidity") {
		t.Error("caution should be italicized")
	}
	if strings.Contains(msg, "plain reasoning") {
		t.Error("narrative replaces the deterministic reasoning")
	}
	if strings.Contains(msg, "Entry:") {
		t.Error("no levels block without levels")
	}
}

func TestMonitorUsesNarratorWhenHealthy(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	state := advisor.NewState()
	capture := &captureNotifier{}
	manager := notification.NewManager(true)
	manager.AddNotifier(capture)
	narrator := &stubNarrator{
		enabled:   true,
		narrative: &llm.Narrative{Headline: "Buyers press their advantage", Commentary: "Most factors lean long."},
	}
	mon := New(collector, state, narrator, manager, events.NewEventBus(), nil, nil, testConfig())

	mon.RunCycle()

	if capture.count() != 1 {
		t.Fatal("expected one delivery")
	}
	if !strings.Contains(capture.sent[0].Message, "Buyers press their advantage") {
		t.Errorf("delivery should use the narrative:\n%s", capture.sent[0].Message)
	}
}

func TestMonitorFallsBackWhenNarratorFails(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	state := advisor.NewState()
	capture := &captureNotifier{}
	manager := notification.NewManager(true)
	manager.AddNotifier(capture)
	narrator := &stubNarrator{enabled: true, err: errors.New("model overloaded")}
	mon := New(collector, state, narrator, manager, events.NewEventBus(), nil, nil, testConfig())

	mon.RunCycle()

	if capture.count() != 1 {
		t.Fatal("a failed narrator must not block delivery")
	}
	if !strings.Contains(capture.sent[0].Message, "bullish vs") {
		t.Errorf("fallback should use deterministic reasoning:\n%s", capture.sent[0].Message)
	}
}

// ============================================================================
// Interactive
// ============================================================================

func TestInteractiveAnalyzeDoesNotTouchBaseline(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	state := advisor.NewState()
	interactive := NewInteractive(collector, state, nil, nil, testConfig())

	rec, message := interactive.Analyze(context.Background())

	if !rec.Signal.Actionable() {
		t.Errorf("expected an actionable read from bullish factors, got %s", rec.Signal)
	}
	if message == "" {
		t.Error("analysis should produce message text")
	}
	if state.Latest() == nil {
		t.Error("on-demand analysis should update the latest read")
	}
	if state.LastNotified() != nil {
		t.Error("on-demand analysis must not move the notified baseline")
	}
}

func TestInteractiveAskWithoutAnalysis(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	interactive := NewInteractive(collector, advisor.NewState(), nil, nil, testConfig())

	answer := interactive.Ask(context.Background(), "what now?")

	if !strings.Contains(answer, "/analyze") {
		t.Errorf("without state the answer should point at /analyze, got %q", answer)
	}
}

func TestInteractiveAskFallsBackToStatusLine(t *testing.T) {
	collector := &stubCollector{fs: bullishFeatures()}
	state := advisor.NewState()
	interactive := NewInteractive(collector, state, nil, nil, testConfig())

	interactive.Analyze(context.Background())
	answer := interactive.Ask(context.Background(), "should I buy?")

	if !strings.Contains(answer, "confidence") {
		t.Errorf("fallback answer should summarize the current read, got %q", answer)
	}
}
