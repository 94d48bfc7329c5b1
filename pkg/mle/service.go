package mle

import (
	"errors"
	"net/netip"
	"time"
)

// ErrNoBuffers is returned when the message service cannot allocate an
// outbound buffer.
var ErrNoBuffers = errors.New("mle: no message buffers")

// MessageID identifies an outbound message buffer. Zero is never a valid id.
type MessageID uint16

// TimeoutParams configures retransmission of an outbound message.
type TimeoutParams struct {
	// RetransMax is the number of retransmissions after the first send.
	RetransMax uint8

	// TimeoutInit is the first retransmission timeout; it doubles on each
	// retry up to TimeoutMax.
	TimeoutInit time.Duration
	TimeoutMax  time.Duration

	// Delay is an optional random transmit delay.
	Delay time.Duration
}

// TimeoutKind tags an outbound message with the handler that owns its
// retransmission timer.
type TimeoutKind uint8

const (
	// TimeoutNone marks fire-and-forget messages.
	TimeoutNone TimeoutKind = iota
	TimeoutParentRequest
	TimeoutChildIDRequest
	TimeoutChildUpdate
	TimeoutSynch
	TimeoutDataRequest
)

// String returns the timeout kind name.
func (k TimeoutKind) String() string {
	switch k {
	case TimeoutNone:
		return "NONE"
	case TimeoutParentRequest:
		return "PARENT_REQUEST"
	case TimeoutChildIDRequest:
		return "CHILD_ID_REQUEST"
	case TimeoutChildUpdate:
		return "CHILD_UPDATE"
	case TimeoutSynch:
		return "SYNCH"
	case TimeoutDataRequest:
		return "DATA_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// RetryDecision is the result of a retransmission timeout callback.
type RetryDecision uint8

const (
	// Retry asks the service to retransmit the message.
	Retry RetryDecision = iota

	// GiveUp ends the retry sequence; the service releases the buffer.
	GiveUp

	// Handled ends the retry sequence because the callback already
	// completed the exchange by other means; the service releases the
	// buffer.
	Handled
)

// String returns the decision name.
func (d RetryDecision) String() string {
	switch d {
	case Retry:
		return "RETRY"
	case GiveUp:
		return "GIVE_UP"
	case Handled:
		return "HANDLED"
	default:
		return "UNKNOWN"
	}
}

// Outbound is an allocated outbound message.
type Outbound struct {
	ID          MessageID
	Interface   InterfaceID
	Command     Command
	Multicast   bool
	Destination netip.Addr
	Payload     []byte
	Security    SecurityParams
	Timeout     TimeoutParams
	Kind        TimeoutKind
}

// MessageService builds on the MLE transport. Implementations own buffer
// lifetime: a buffer lives from Allocate until Free, until a timeout
// callback ends its retry sequence, or until a fire-and-forget message has
// been transmitted.
type MessageService interface {
	// Allocate reserves a buffer of at least size payload bytes.
	Allocate(iface InterfaceID, size int, multicast bool, cmd Command) (*Outbound, error)

	// Send queues msg for transmission and arms its retransmission timer
	// when msg.Kind is not TimeoutNone.
	Send(msg *Outbound) error

	// Free releases a buffer and cancels its timer.
	Free(id MessageID)

	// ValidateResponse returns the id of the outstanding message whose
	// Challenge matches response, or zero.
	ValidateResponse(iface InterfaceID, response []byte) MessageID

	// ClearQueue drops all queued outbound messages of an interface.
	ClearQueue(iface InterfaceID)
}

// Receiver consumes received messages and retransmission timeouts. The
// service must never call a Receiver concurrently for the same interface.
type Receiver interface {
	HandleMessage(msg *Message)
	HandleTimeout(msg *Outbound, usedAllRetries bool) RetryDecision
}
