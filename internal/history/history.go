// Package history exports the incident timeline (recovery attempts, alert
// firings) to external systems so it survives daemon restarts.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of incident event.
type EventType string

const (
	EventRecoveryStarted  EventType = "recovery_started"
	EventRecoveryAction   EventType = "recovery_action"
	EventRecoveryVerified EventType = "recovery_verified"
	EventCriticalAlert    EventType = "critical_alert"
)

// Event is one entry of the incident timeline. Fields not relevant to the
// event type stay zero.
type Event struct {
	Type           EventType     `json:"type"`
	OccurredAt     time.Time     `json:"occurred_at"`
	Process        string        `json:"process"`
	Classification string        `json:"classification,omitempty"`
	Attempt        int           `json:"attempt,omitempty"`
	Backoff        time.Duration `json:"backoff,omitempty"`
	Success        bool          `json:"success"`
	Detail         string        `json:"detail,omitempty"`
}

// Sink is a destination for incident events. Implementations must be safe
// for concurrent use. Send failures are logged by callers, never propagated.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
