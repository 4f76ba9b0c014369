package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for notification payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTransfer
	EventTypeApproval
)

// Envelope wraps every notification the core emits. It is built after the
// state change it describes has been committed.
type Envelope struct {
	// Unique per notification
	ID uuid.UUID

	// Monotonic commit sequence assigned by the engine
	Sequence uint64

	// Upstream dedup key; empty for calls that did not supply one
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Commit time as seen by the engine's clock
	Timestamp time.Time

	// SHA-256 chain hash AFTER applying this operation
	StateHash [32]byte

	// Chain hash of the previous operation
	PrevHash [32]byte

	Payload Event
}

// Event is implemented by all notification payloads.
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeTransfer:
		return "Transfer"
	case EventTypeApproval:
		return "Approval"
	default:
		return "Unknown"
	}
}

// Subject returns the lowercase token used in message subjects.
func (et EventType) Subject() string {
	switch et {
	case EventTypeTransfer:
		return "transfer"
	case EventTypeApproval:
		return "approval"
	default:
		return "unknown"
	}
}

// ParseEventType is the inverse of String.
func ParseEventType(s string) EventType {
	switch s {
	case "Transfer":
		return EventTypeTransfer
	case "Approval":
		return EventTypeApproval
	default:
		return EventTypeUnknown
	}
}
