package events

import (
	"time"

	"mcpbridge/internal/api"
)

// EventType represents the severity of a lifecycle event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Instance lifecycle event reasons
const (
	// ReasonInstanceCreated indicates an instance entry was created and its
	// process spawn began.
	ReasonInstanceCreated EventReason = "InstanceCreated"

	// ReasonInstanceStarted indicates an instance completed its protocol
	// handshake and reached the running state.
	ReasonInstanceStarted EventReason = "InstanceStarted"

	// ReasonInstanceStopped indicates an instance was stopped and removed.
	ReasonInstanceStopped EventReason = "InstanceStopped"

	// ReasonInstanceFailed indicates a spawn or handshake failure.
	ReasonInstanceFailed EventReason = "InstanceFailed"

	// ReasonInstanceCrashed indicates a running instance's process exited
	// unexpectedly.
	ReasonInstanceCrashed EventReason = "InstanceCrashed"

	// ReasonInstanceTimeout indicates an instance did not reach running
	// within its startup deadline and was killed.
	ReasonInstanceTimeout EventReason = "InstanceTimeout"

	// ReasonInstanceRestarted indicates a crashed instance was transparently
	// replaced under the same identity.
	ReasonInstanceRestarted EventReason = "InstanceRestarted"
)

// Cleanup sweep event reasons
const (
	// ReasonCleanupStarted indicates a sweep tick began.
	ReasonCleanupStarted EventReason = "CleanupStarted"

	// ReasonCleanupCompleted indicates a sweep tick finished; the event data
	// carries the total removed count.
	ReasonCleanupCompleted EventReason = "CleanupCompleted"

	// ReasonCleanupError indicates one manager's cleanup failed during a
	// sweep tick. The other managers' cleanup is unaffected.
	ReasonCleanupError EventReason = "CleanupError"
)

// EventData holds contextual information for an event.
type EventData struct {
	// ServerName is the server definition involved, if any.
	ServerName string

	// InstanceID is the instance involved, if any.
	InstanceID string

	// Mode is the lifecycle mode of the instance involved, if any.
	Mode api.LifecycleMode

	// RemovedCount is the number of instances removed (cleanup events).
	RemovedCount int

	// Error contains error information for failure events.
	Error string
}

// Event is one emitted lifecycle signal.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    EventReason
	Data      EventData
}

// eventTypeFor returns the appropriate EventType for a given EventReason.
func eventTypeFor(reason EventReason) EventType {
	switch reason {
	case ReasonInstanceFailed,
		ReasonInstanceCrashed,
		ReasonInstanceTimeout,
		ReasonCleanupError:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
