package events

import (
	"context"
	"time"
)

// Event is anything published on the bus.
type Event interface {
	// EventType is the subject suffix, e.g. "search.submitted".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// SessionEvent is a lifecycle event of one anonymous session.
type SessionEvent struct {
	Type       string
	SessionID  string
	ClientID   string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func NewSessionEvent(eventType, sessionID, clientID string, data map[string]interface{}) SessionEvent {
	return SessionEvent{
		Type:       eventType,
		SessionID:  sessionID,
		ClientID:   clientID,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

func (e SessionEvent) EventType() string {
	return e.Type
}

// Payload flattens the identifiers and timestamp next to the event data.
func (e SessionEvent) Payload() map[string]interface{} {
	p := make(map[string]interface{}, len(e.Data)+3)
	for k, v := range e.Data {
		p[k] = v
	}
	p["session_id"] = e.SessionID
	p["client_id"] = e.ClientID
	p["occurred_at"] = e.OccurredAt.UTC().Format(time.RFC3339Nano)
	return p
}

func (e SessionEvent) Timestamp() time.Time {
	return e.OccurredAt
}
