package domain

import "time"

type EventKind string

const (
	EventSignup         EventKind = "signup"
	EventProfileUpdated EventKind = "profile-updated"
	EventStockChanged   EventKind = "stock-changed"
	EventGeneric        EventKind = "generic"
)

// NotificationEvent is pushed to live clients after a mutation commits.
type NotificationEvent struct {
	Kind       EventKind      `json:"kind"`
	Attributes map[string]any `json:"attributes"`
	Timestamp  int64          `json:"timestamp"` // unix millis
}

func NewEvent(kind EventKind, attrs map[string]any) NotificationEvent {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return NotificationEvent{Kind: kind, Attributes: attrs, Timestamp: time.Now().UnixMilli()}
}
