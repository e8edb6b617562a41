// Package circuit guards the external data sources behind the advisory
// factors. A source that keeps failing is put on cooldown so cycles degrade
// that factor immediately instead of burning the fetch timeout on it.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the breaker state
type State string

const (
	StateClosed   State = "closed"    // Source healthy
	StateOpen     State = "open"      // Source on cooldown
	StateHalfOpen State = "half_open" // Probing recovery
)

// Config holds breaker configuration
type Config struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before trip
	Cooldown         time.Duration `json:"cooldown"`          // How long a tripped source rests
}

// DefaultConfig returns safe defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		FailureThreshold: 3,
		Cooldown:         2 * time.Minute,
	}
}

// Breaker tracks the health of one external source
type Breaker struct {
	name                string
	config              *Config
	state               State
	consecutiveFailures int
	lastTripTime        time.Time
	tripReason          string
	mu                  sync.RWMutex
	onTrip              func(name, reason string)
	onReset             func(name string)
}

// New creates a breaker for the named source
func New(name string, config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// OnTrip sets the callback for when the breaker trips
func (b *Breaker) OnTrip(handler func(name, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback for when the breaker closes again
func (b *Breaker) OnReset(handler func(name string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Allow reports whether a request may go out. An open breaker refuses until
// its cooldown passes, then lets a single probe through in half-open state.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		elapsed := time.Since(b.lastTripTime)
		if elapsed < b.config.Cooldown {
			remaining := b.config.Cooldown - elapsed
			return false, fmt.Sprintf("on cooldown for %v (reason: %s)",
				remaining.Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	return true, ""
}

// RecordSuccess marks a successful request, closing the breaker
func (b *Breaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	recovered := b.state == StateHalfOpen
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.tripReason = ""
	onReset := b.onReset
	b.mu.Unlock()

	if recovered && onReset != nil {
		go onReset(b.name)
	}
}

// RecordFailure marks a failed request. A failed half-open probe re-trips
// immediately; otherwise the breaker trips once the failure threshold is hit.
func (b *Breaker) RecordFailure(err error) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFailures++

	shouldTrip := b.state == StateHalfOpen || b.consecutiveFailures >= b.config.FailureThreshold
	var onTrip func(name, reason string)
	var reason string
	if shouldTrip {
		b.state = StateOpen
		b.lastTripTime = time.Now()
		reason = fmt.Sprintf("%d consecutive failures, last: %v", b.consecutiveFailures, err)
		b.tripReason = reason
		onTrip = b.onTrip
	}
	b.mu.Unlock()

	if onTrip != nil {
		go onTrip(b.name, reason)
	}
}

// ForceReset manually closes the breaker
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.tripReason = ""
	b.mu.Unlock()
}

// Name returns the source name
func (b *Breaker) Name() string {
	return b.name
}

// GetState returns the current breaker state
func (b *Breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// GetStats returns current statistics
func (b *Breaker) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"name":                 b.name,
		"state":                string(b.state),
		"consecutive_failures": b.consecutiveFailures,
		"trip_reason":          b.tripReason,
		"last_trip_time":       b.lastTripTime,
	}
}
