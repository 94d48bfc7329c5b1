package log

import (
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Event is one protocol capture record. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Interface the event belongs to.
	Interface mle.InterfaceID `cbor:"2,keyasint"`

	// AttemptID identifies one attach or synchronization cycle (UUID).
	AttemptID string `cbor:"3,keyasint,omitempty"`

	Direction Direction `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Role is the device role at the time of the event.
	Role string `cbor:"6,keyasint,omitempty"`

	// Peer is the extended address of the remote node, if any.
	Peer string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	Timeout     *TimeoutEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// NewAttemptID returns a fresh attempt id.
func NewAttemptID() string {
	return uuid.NewString()
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a received message.
	DirectionIn Direction = 0
	// DirectionOut indicates a sent message.
	DirectionOut Direction = 1
	// DirectionLocal marks events without a message on the air.
	DirectionLocal Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an MLE message.
	CategoryMessage Category = 0
	// CategoryTimeout indicates a retransmission timeout.
	CategoryTimeout Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryTimeout:
		return "TIMEOUT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxPayloadCapture bounds the payload bytes kept per message.
const MaxPayloadCapture = 128

// MessageEvent captures an MLE message.
type MessageEvent struct {
	Command mle.Command `cbor:"1,keyasint"`

	// MessageID is the service buffer id (outbound only).
	MessageID mle.MessageID `cbor:"2,keyasint,omitempty"`

	// TLVs lists the TLV types present, in order.
	TLVs []mle.TLVType `cbor:"3,keyasint,omitempty"`

	// DBM is the receive signal strength (inbound only).
	DBM int8 `cbor:"4,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"5,keyasint"`

	// Payload holds the first MaxPayloadCapture payload bytes.
	Payload   []byte `cbor:"6,keyasint,omitempty"`
	Truncated bool   `cbor:"7,keyasint,omitempty"`
}

// NewMessageEvent captures cmd with payload.
func NewMessageEvent(cmd mle.Command, id mle.MessageID, payload []byte) *MessageEvent {
	m := &MessageEvent{
		Command:   cmd,
		MessageID: id,
		TLVs:      mle.Types(payload),
		Size:      len(payload),
	}
	data := payload
	if len(data) > MaxPayloadCapture {
		data = data[:MaxPayloadCapture]
		m.Truncated = true
	}
	m.Payload = append([]byte(nil), data...)
	return m
}

// TimeoutEvent captures a retransmission timeout.
type TimeoutEvent struct {
	Kind           mle.TimeoutKind   `cbor:"1,keyasint"`
	MessageID      mle.MessageID     `cbor:"2,keyasint"`
	UsedAllRetries bool              `cbor:"3,keyasint,omitempty"`
	Decision       mle.RetryDecision `cbor:"4,keyasint"`
}

// StateChangeEvent captures attach lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityAttach is the attach state machine.
	StateEntityAttach StateEntity = 0
	// StateEntityRole is the device role.
	StateEntityRole StateEntity = 1
	// StateEntityParent is the selected parent.
	StateEntityParent StateEntity = 2
	// StateEntityPartition is the partition (leader data).
	StateEntityPartition StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityAttach:
		return "ATTACH"
	case StateEntityRole:
		return "ROLE"
	case StateEntityParent:
		return "PARENT"
	case StateEntityPartition:
		return "PARTITION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures dropped messages and connection errors.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Code is a connection error kind, if applicable.
	Code *int `cbor:"2,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
