package event

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Turn lifecycle
	TurnAccepted      EventType = "turn.accepted"
	TurnPersisted     EventType = "turn.persisted"
	TurnPersistFailed EventType = "turn.persist_failed"

	// Session lifecycle
	SessionHydrated EventType = "session.hydrated"
	SessionDegraded EventType = "session.degraded"
	SessionCleared  EventType = "session.cleared"
	SessionEvicted  EventType = "session.evicted"

	// Image generation
	ImageGenerated EventType = "image.generated"
	ImageFailed    EventType = "image.failed"
)

// Event carries data about a lifecycle occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}
