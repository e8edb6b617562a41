package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventCycleStarted           EventType = "CYCLE_STARTED"
	EventCycleSkipped           EventType = "CYCLE_SKIPPED"
	EventRecommendationReady    EventType = "RECOMMENDATION_READY"
	EventNotificationSent       EventType = "NOTIFICATION_SENT"
	EventNotificationSuppressed EventType = "NOTIFICATION_SUPPRESSED"
	EventMonitorStarted         EventType = "MONITOR_STARTED"
	EventMonitorStopped         EventType = "MONITOR_STOPPED"
	EventError                  EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishRecommendation publishes a recommendation-ready event
func (eb *EventBus) PublishRecommendation(cycleID, signal string, confidence int, bullish, bearish int) {
	eb.Publish(Event{
		Type: EventRecommendationReady,
		Data: map[string]interface{}{
			"cycle_id":   cycleID,
			"signal":     signal,
			"confidence": confidence,
			"bullish":    bullish,
			"bearish":    bearish,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component string, err error) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"error":     err.Error(),
		},
	})
}
