// Package transport defines the byte-link abstraction the connection state
// machine drives. BLE, USB serial, and TCP relays are interchangeable
// providers of connect/disconnect primitives and a push-based chunk stream.
package transport

import (
	"errors"
	"fmt"

	"loralink/pkg/telemetry"
)

// Chunk is one inbound read with optional out-of-band signal metadata.
type Chunk struct {
	Data   []byte
	Signal *telemetry.Signal
}

// EventKind tags transport events. All async transport activity is delivered
// as tagged events on one channel so the consumer can serialize handling.
type EventKind int

const (
	// EventConnected reports a successful async connect.
	EventConnected EventKind = iota
	// EventConnectFailed reports a failed async connect; Err holds a
	// ConnectError.
	EventConnectFailed
	// EventChunk delivers inbound bytes.
	EventChunk
	// EventDisconnected reports a transport-initiated drop (cable pulled,
	// remote close). A normal lifecycle event, not a fault.
	EventDisconnected
	// EventFault reports an unexpected transport failure.
	EventFault
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect-failed"
	case EventChunk:
		return "chunk"
	case EventDisconnected:
		return "disconnected"
	case EventFault:
		return "fault"
	default:
		return fmt.Sprintf("event %d", int(k))
	}
}

// Event is one tagged transport message.
type Event struct {
	Kind  EventKind
	Chunk Chunk
	Err   error
}

// Strategy is a single logical connection to the relay. Connect is
// asynchronous: it starts the attempt and the outcome arrives on Events.
// Disconnect is idempotent and safe in any state.
type Strategy interface {
	Initialize() error
	Connect(target string) error
	Disconnect()
	Connected() bool

	// RequiresTarget reports whether Connect needs a device address. A
	// transport that auto-discovers (USB picks the first enumerated
	// device) accepts an empty target.
	RequiresTarget() bool

	// Events is the push-based stream of connect results, chunks, and
	// drops. Closed only when the strategy is torn down for good.
	Events() <-chan Event
}

// ErrNotInitialized is returned by Connect before Initialize succeeded.
var ErrNotInitialized = errors.New("transport not initialized")

// InitError reports that the transport's underlying stack is unavailable.
type InitError struct {
	cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("transport init: %v", e.cause)
}

func (e *InitError) Unwrap() error { return e.cause }

func NewInitError(cause error) *InitError {
	return &InitError{cause: cause}
}

// ConnectReason classifies connect failures.
type ConnectReason int

const (
	// InvalidTarget means the target is missing or malformed for this
	// transport. Rejected before the transport is contacted.
	InvalidTarget ConnectReason = iota
	// Timeout means the attempt exceeded the configured connect timeout.
	Timeout
	// TransportRejected means the transport reported the failure.
	TransportRejected
)

func (r ConnectReason) String() string {
	switch r {
	case InvalidTarget:
		return "invalid target"
	case Timeout:
		return "timeout"
	case TransportRejected:
		return "transport rejected"
	default:
		return fmt.Sprintf("connect reason %d", int(r))
	}
}

// ConnectError is a failed connection attempt.
type ConnectError struct {
	Reason ConnectReason
	cause  error
}

func (e *ConnectError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("connect: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("connect: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.cause }

func NewConnectError(reason ConnectReason, cause error) *ConnectError {
	return &ConnectError{Reason: reason, cause: cause}
}
