package transport

import (
	"sync"

	"loralink/pkg/telemetry"
)

// Mock is a scriptable in-memory Strategy for tests and the relay
// simulator. Tests drive it: CompleteConnect finishes a pending attempt,
// Feed injects chunks, Drop simulates a transport-initiated disconnect.
type Mock struct {
	// InitErr, when set, fails Initialize.
	InitErr error
	// ConnectErr, when set, fails the connect attempt.
	ConnectErr error
	// AutoComplete makes Connect resolve immediately instead of waiting
	// for CompleteConnect.
	AutoComplete bool

	name        string
	needsTarget bool
	events      chan Event

	mu          sync.Mutex
	initialized bool
	connected   bool
	pending     bool
	targets     []string
}

// NewMockBLE mimics a BLE link: packetized chunks with per-notification
// signal metadata, and a device address is required to connect.
func NewMockBLE() *Mock {
	return &Mock{
		name:         "mock-ble",
		needsTarget:  true,
		AutoComplete: true,
		events:       make(chan Event, 256),
	}
}

// NewMockUSB mimics a USB serial link: raw stream chunks, no signal
// metadata, and an empty target auto-detects the first device.
func NewMockUSB() *Mock {
	return &Mock{
		name:         "mock-usb",
		needsTarget:  false,
		AutoComplete: true,
		events:       make(chan Event, 256),
	}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Initialize() error {
	if m.InitErr != nil {
		return NewInitError(m.InitErr)
	}
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) RequiresTarget() bool { return m.needsTarget }

func (m *Mock) Events() <-chan Event { return m.events }

func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) Connect(target string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.pending = true
	m.targets = append(m.targets, target)
	auto := m.AutoComplete
	m.mu.Unlock()

	if auto {
		m.CompleteConnect(m.ConnectErr)
	}
	return nil
}

// CompleteConnect resolves the pending connect attempt. A nil err connects;
// any other err surfaces as a transport-rejected connect failure.
func (m *Mock) CompleteConnect(err error) {
	m.mu.Lock()
	if !m.pending {
		m.mu.Unlock()
		return
	}
	m.pending = false
	if err == nil {
		m.connected = true
	}
	m.mu.Unlock()

	if err == nil {
		m.events <- Event{Kind: EventConnected}
		return
	}
	if _, ok := err.(*ConnectError); !ok {
		err = NewConnectError(TransportRejected, err)
	}
	m.events <- Event{Kind: EventConnectFailed, Err: err}
}

// Feed injects one inbound chunk. Ignored when not connected.
func (m *Mock) Feed(data []byte, sig *telemetry.Signal) {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return
	}
	m.events <- Event{Kind: EventChunk, Chunk: Chunk{Data: append([]byte(nil), data...), Signal: sig}}
}

// Drop simulates a transport-initiated disconnect.
func (m *Mock) Drop() {
	m.mu.Lock()
	wasConnected := m.connected
	m.connected = false
	m.mu.Unlock()
	if wasConnected {
		m.events <- Event{Kind: EventDisconnected}
	}
}

// Fault simulates an unexpected transport failure.
func (m *Mock) Fault(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.events <- Event{Kind: EventFault, Err: err}
}

func (m *Mock) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.pending = false
	m.mu.Unlock()
}

// Targets returns every target passed to Connect, in order.
func (m *Mock) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.targets...)
}
