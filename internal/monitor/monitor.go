package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/ai/llm"
	"market-advisor-bot/internal/events"
	"market-advisor-bot/internal/factors"
	"market-advisor-bot/internal/logging"
	"market-advisor-bot/internal/notification"
)

// Phase is the monitor's current position in the advisory cycle
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCollecting   Phase = "collecting"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseNotifying    Phase = "notifying"
)

// Collector produces a feature set for one cycle
type Collector interface {
	Collect(ctx context.Context) factors.FeatureSet
}

// Narrator renders a recommendation as subscriber prose
type Narrator interface {
	Narrative(ctx context.Context, rec advisor.Recommendation, fs factors.FeatureSet) (*llm.Narrative, error)
	IsEnabled() bool
}

// Persister stores the last delivered recommendation across restarts
type Persister interface {
	SaveLastNotified(ctx context.Context, rec advisor.Recommendation) error
	LoadLastNotified(ctx context.Context) (*advisor.Recommendation, error)
}

// HistoryRecorder keeps a durable record of completed cycles
type HistoryRecorder interface {
	RecordCycle(ctx context.Context, cycleID string, rec advisor.Recommendation, notified bool) error
}

// Config holds monitor configuration
type Config struct {
	Enabled       bool
	CheckInterval time.Duration
	CycleTimeout  time.Duration
}

// Status is a snapshot of the monitor for status queries
type Status struct {
	Running       bool       `json:"running"`
	Phase         Phase      `json:"phase"`
	CheckInterval string     `json:"check_interval"`
	CyclesRun     int64      `json:"cycles_run"`
	CyclesSkipped int64      `json:"cycles_skipped"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleID   string     `json:"last_cycle_id,omitempty"`
}

// Monitor drives the recurring advisory cycle: collect factors, synthesize
// a recommendation, and notify the subscriber when it is novel enough.
type Monitor struct {
	collector Collector
	state     *advisor.State
	narrator  Narrator
	notifier  *notification.Manager
	bus       *events.EventBus
	persister Persister
	history   HistoryRecorder
	config    Config
	logger    *logging.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	busy     atomic.Bool

	mu            sync.RWMutex
	running       bool
	phase         Phase
	cyclesRun     int64
	cyclesSkipped int64
	lastCycleAt   time.Time
	lastCycleID   string
}

// New creates a monitor. The narrator, persister and history recorder are
// optional; a nil value disables that concern.
func New(
	collector Collector,
	state *advisor.State,
	narrator Narrator,
	notifier *notification.Manager,
	bus *events.EventBus,
	persister Persister,
	history HistoryRecorder,
	config Config,
) *Monitor {
	return &Monitor{
		collector: collector,
		state:     state,
		narrator:  narrator,
		notifier:  notifier,
		bus:       bus,
		persister: persister,
		history:   history,
		config:    config,
		logger:    logging.WithComponent("monitor"),
		stopChan:  make(chan struct{}),
		phase:     PhaseIdle,
	}
}

// Start begins the background cycle loop. The first cycle runs immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if m.persister != nil {
		m.restoreBaseline()
	}

	m.wg.Add(1)
	go m.runLoop()

	m.bus.Publish(events.Event{Type: events.EventMonitorStarted})
	m.logger.Info("advisory monitor started", "interval", m.config.CheckInterval.String())
}

// Stop gracefully shuts down the monitor. A cycle in flight is allowed to
// finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.bus.Publish(events.Event{Type: events.EventMonitorStopped})
	m.logger.Info("advisory monitor stopped")
}

// IsRunning reports whether the cycle loop is active
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Status returns a snapshot for status queries
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Running:       m.running,
		Phase:         m.phase,
		CheckInterval: m.config.CheckInterval.String(),
		CyclesRun:     m.cyclesRun,
		CyclesSkipped: m.cyclesSkipped,
		LastCycleID:   m.lastCycleID,
	}
	if !m.lastCycleAt.IsZero() {
		t := m.lastCycleAt
		st.LastCycleAt = &t
	}
	return st
}

func (m *Monitor) runLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately
	m.RunCycle()

	for {
		select {
		case <-ticker.C:
			m.RunCycle()
		case <-m.stopChan:
			return
		}
	}
}

// RunCycle executes one advisory cycle. Cycles are single flight: if the
// previous one is still in progress the tick is skipped, never queued.
func (m *Monitor) RunCycle() {
	if !m.busy.CompareAndSwap(false, true) {
		m.mu.Lock()
		m.cyclesSkipped++
		m.mu.Unlock()
		m.bus.Publish(events.Event{Type: events.EventCycleSkipped})
		m.logger.Warn("cycle still in progress, skipping tick")
		return
	}
	defer m.busy.Store(false)

	cycleID := uuid.New().String()
	logger := logging.CycleContext(cycleID)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.CycleTimeout)
	defer cancel()

	start := time.Now()
	m.setPhase(PhaseCollecting)
	m.bus.Publish(events.Event{Type: events.EventCycleStarted, Data: map[string]interface{}{"cycle_id": cycleID}})
	logger.Info("advisory cycle started")

	fs := m.collector.Collect(ctx)

	m.setPhase(PhaseSynthesizing)
	rec := advisor.Synthesize(fs)
	m.state.Record(fs, rec)

	m.bus.PublishRecommendation(cycleID, rec.Signal.String(), rec.Confidence, rec.BullishCount, rec.BearishCount)
	logger.Info("recommendation synthesized",
		"signal", rec.Signal.String(),
		"confidence", rec.Confidence,
		"populated", rec.PopulatedCount)

	notified := m.maybeNotify(ctx, cycleID, rec, fs, logger)

	if m.history != nil {
		if err := m.history.RecordCycle(ctx, cycleID, rec, notified); err != nil {
			logger.Warn("failed to record cycle history", "error", err.Error())
		}
	}

	m.setPhase(PhaseIdle)
	m.mu.Lock()
	m.cyclesRun++
	m.lastCycleAt = time.Now()
	m.lastCycleID = cycleID
	m.mu.Unlock()

	logger.Info("advisory cycle finished", "duration", time.Since(start).String())
}

// maybeNotify applies the novelty gate and delivers when it opens. It
// reports whether a notification went out.
func (m *Monitor) maybeNotify(ctx context.Context, cycleID string, rec advisor.Recommendation, fs factors.FeatureSet, logger *logging.Logger) bool {
	prev := m.state.LastNotified()
	notify, reason := advisor.ShouldNotify(prev, &rec)
	if !notify {
		m.bus.Publish(events.Event{Type: events.EventNotificationSuppressed, Data: map[string]interface{}{"cycle_id": cycleID, "reason": reason}})
		logger.Info("notification suppressed", "reason", reason)
		return false
	}

	m.setPhase(PhaseNotifying)

	message := m.composeMessage(ctx, rec, fs)
	if err := m.notifier.SendAdvisory(rec.Signal.String(), rec.Confidence, message); err != nil {
		logger.Error("notification delivery failed", "error", err.Error())
		m.bus.PublishError("monitor", err)
		return false
	}

	m.state.MarkNotified(rec)
	if m.persister != nil {
		if err := m.persister.SaveLastNotified(ctx, rec); err != nil {
			logger.Warn("failed to persist notified recommendation", "error", err.Error())
		}
	}

	m.bus.Publish(events.Event{Type: events.EventNotificationSent, Data: map[string]interface{}{"cycle_id": cycleID, "reason": reason}})
	logger.Info("notification sent", "reason", reason)
	return true
}

// composeMessage prefers LLM prose and falls back to the deterministic
// reasoning when the narrator is disabled or misbehaves.
func (m *Monitor) composeMessage(ctx context.Context, rec advisor.Recommendation, fs factors.FeatureSet) string {
	if m.narrator != nil && m.narrator.IsEnabled() {
		narrative, err := m.narrator.Narrative(ctx, rec, fs)
		if err == nil {
			return ComposeAdvisory(rec, narrative)
		}
		m.logger.Warn("narrative generation failed, using plain reasoning", "error", err.Error())
	}
	return ComposeAdvisory(rec, nil)
}

// restoreBaseline seeds the novelty gate from persistence so a restart does
// not re-announce an unchanged recommendation.
func (m *Monitor) restoreBaseline() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := m.persister.LoadLastNotified(ctx)
	if err != nil {
		m.logger.Warn("could not restore notified baseline", "error", err.Error())
		return
	}
	if rec != nil {
		m.state.Restore(*rec)
		m.logger.Info("restored notified baseline", "signal", rec.Signal.String())
	}
}

func (m *Monitor) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// ComposeAdvisory renders a recommendation as message text, with the
// optional LLM narrative on top of the deterministic body.
func ComposeAdvisory(rec advisor.Recommendation, narrative *llm.Narrative) string {
	var sb strings.Builder

	if narrative != nil {
		sb.WriteString(narrative.Headline)
		sb.WriteString("\n\n")
		sb.WriteString(narrative.Commentary)
		if narrative.Caution != "" {
			sb.WriteString("\n\n_")
			sb.WriteString(narrative.Caution)
			sb.WriteString("_")
		}
	} else {
		sb.WriteString(rec.Reasoning)
	}

	if rec.Levels != nil {
		fmt.Fprintf(&sb, "\n\nEntry: %.2f\nStop: %.2f\nTargets: %.2f / %.2f",
			rec.Levels.Entry, rec.Levels.StopLoss, rec.Levels.Target1, rec.Levels.Target2)
	}

	return sb.String()
}
