package link

import "fmt"

// State is the connection lifecycle state. Exactly one state is active at a
// time and transitions are the only mutation path.
type State int

const (
	// StateIdle is the initial state, before Initialize.
	StateIdle State = iota
	// StateInitializing means the transport stack is being brought up.
	StateInitializing
	// StateReady means the transport is initialized but not linked to a
	// device yet.
	StateReady
	// StateConnecting means an async connect attempt is in flight.
	StateConnecting
	// StateConnected means the link is up, no data observed yet.
	StateConnected
	// StateReceiving means the link is up and data has been observed.
	StateReceiving
	// StateDisconnecting means teardown is in progress.
	StateDisconnecting
	// StateDisconnected is terminal for one attempt; Initialize reenters.
	StateDisconnected
	// StateFailed is terminal with a reason; Initialize reenters.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReceiving:
		return "receiving"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state %d", int(s))
	}
}

// IsConnected reports whether the state is externally observable as
// connected.
func (s State) IsConnected() bool {
	return s == StateConnected || s == StateReceiving
}
