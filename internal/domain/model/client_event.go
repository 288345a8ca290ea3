package model

// EventType is the tag the browser switches on.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventInsert      EventType = "insert"
	EventUpdate      EventType = "update"
	EventDelete      EventType = "delete"
	EventReconnected EventType = "reconnected"
)

// ClientEvent is the wire payload pushed to a single client connection.
type ClientEvent struct {
	Type       EventType      `json:"type"`
	DocumentID string         `json:"documentId,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
}

// NewConnectedEvent is emitted once the first subscription is open.
func NewConnectedEvent() *ClientEvent {
	return &ClientEvent{Type: EventConnected}
}

// NewReconnectedEvent is emitted after a successful recovery.
func NewReconnectedEvent(attempt int) *ClientEvent {
	return &ClientEvent{Type: EventReconnected, Attempt: attempt}
}

// EventTypeFor maps an operation onto the client tag. Replace is surfaced as an
// update because the browser only distinguishes "changed".
func EventTypeFor(op OperationKind) (EventType, bool) {
	switch op {
	case OpInsert:
		return EventInsert, true
	case OpUpdate, OpReplace:
		return EventUpdate, true
	case OpDelete:
		return EventDelete, true
	default:
		return "", false
	}
}
