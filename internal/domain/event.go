package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of access event being published.
type EventType string

const (
	EventLinkAllowed      EventType = "link.allowed"
	EventLinkRejected     EventType = "link.rejected"
	EventLinkLost         EventType = "link.lost"
	EventSecurityAllowed  EventType = "security.allowed"
	EventSecurityRejected EventType = "security.rejected"
	EventPasskeyShown     EventType = "passkey.shown"
	EventPasskeySuppress  EventType = "passkey.suppressed"
	EventAuthSucceeded    EventType = "auth.succeeded"
	EventAuthFailed       EventType = "auth.failed"
	EventCommandExecuted  EventType = "command.executed"
	EventCommandRejected  EventType = "command.rejected"
	EventWindowOpened     EventType = "pairing.opened"
	EventWindowClosed     EventType = "pairing.closed"
	EventFactoryReset     EventType = "device.factory_reset"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Link      LinkID    `json:"link,omitempty"`
	Remote    Identity  `json:"-"`
	Code      ErrorCode `json:"code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Granted reports whether the event records a permitted action.
func (e Event) Granted() bool {
	switch e.Type {
	case EventLinkAllowed, EventSecurityAllowed, EventPasskeyShown, EventAuthSucceeded,
		EventCommandExecuted, EventWindowOpened:
		return true
	}
	return false
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for access events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// AccessRecord is one persisted access decision. The peer identity is stored
// only as a keyed hash.
type AccessRecord struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Link       LinkID    `json:"link,omitempty"`
	RemoteHash string    `json:"remote_hash,omitempty"`
	Granted    bool      `json:"granted"`
	Code       ErrorCode `json:"code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// AccessEventStore persists access records.
type AccessEventStore interface {
	Append(ctx context.Context, rec AccessRecord) error
	// Recent returns up to n records, newest first.
	Recent(ctx context.Context, n int) ([]AccessRecord, error)
}
