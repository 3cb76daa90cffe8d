// Package link supervises one logical connection to the relay: it drives
// the transport strategy through its lifecycle, funnels every transport
// callback onto a single serialized loop, and forwards framed, decoded
// telemetry and connectivity edges to the sink. Nothing in here retries
// anything; retry policy belongs to the caller.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loralink/pkg/framing"
	"loralink/pkg/sink"
	"loralink/pkg/telemetry"
	"loralink/pkg/transport"
)

// DefaultConnectTimeout bounds a connect attempt. An unbounded wait on a
// radio link is a correctness risk, so a timeout always applies.
const DefaultConnectTimeout = 10 * time.Second

// ErrStopped is returned by commands issued when Run is not active.
var ErrStopped = errors.New("link: machine not running")

type cmdKind int

const (
	cmdInitialize cmdKind = iota
	cmdConnect
	cmdDisconnect
)

type command struct {
	kind   cmdKind
	target string
	done   chan error
}

// Machine owns one transport strategy, one framer, and one decoder. All
// mutable state is touched only on the Run loop; external callers interact
// through commands and the read-only State/Err accessors.
type Machine struct {
	strategy transport.Strategy
	framer   framing.Framer
	dec      *telemetry.Decoder
	sink     sink.Sink
	log      zerolog.Logger

	connectTimeout time.Duration

	cmds    chan command
	stopped chan struct{}

	// Loop-owned; mu guards the fields the accessors read.
	mu                sync.Mutex
	state             State
	failure           error
	gen               uint64
	connectGen        uint64
	notifiedConnected bool
	timer             *time.Timer
}

type Option func(*Machine)

func WithConnectTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

func WithDecoder(dec *telemetry.Decoder) Option {
	return func(m *Machine) {
		if dec != nil {
			m.dec = dec
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

func NewMachine(strategy transport.Strategy, framer framing.Framer, s sink.Sink, opts ...Option) *Machine {
	m := &Machine{
		strategy:       strategy,
		framer:         framer,
		dec:            telemetry.NewDecoder(),
		sink:           s,
		log:            zerolog.Nop(),
		connectTimeout: DefaultConnectTimeout,
		cmds:           make(chan command),
		stopped:        make(chan struct{}),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run is the single serialized context that owns the framer, decoder, and
// state. Transport events and commands are only handled here. Blocks until
// ctx ends. Run must be started before any command is issued: commands
// block until the loop picks them up, and once the loop has exited they
// return ErrStopped.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.stopped)
	for {
		var timerCh <-chan time.Time
		if m.timer != nil {
			timerCh = m.timer.C
		}
		select {
		case <-ctx.Done():
			m.teardown()
			return
		case cmd := <-m.cmds:
			cmd.done <- m.handleCommand(cmd)
		case ev := <-m.strategy.Events():
			m.handleEvent(ev)
		case <-timerCh:
			m.handleConnectTimeout()
		}
	}
}

// Initialize brings the transport up. Legal from idle, disconnected, and
// failed; the machine is reusable across attempts.
func (m *Machine) Initialize() error {
	return m.do(command{kind: cmdInitialize})
}

// Connect starts an async attempt toward target. An empty target is legal
// only for transports that auto-discover. The returned error covers the
// synchronous part; the outcome arrives at the sink.
func (m *Machine) Connect(target string) error {
	return m.do(command{kind: cmdConnect, target: target})
}

// Disconnect tears the link down. Idempotent, legal in any state, and safe
// mid-connect: a connect completion arriving after Disconnect is discarded.
func (m *Machine) Disconnect() error {
	return m.do(command{kind: cmdDisconnect})
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure reason when the state is failed, else nil.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

func (m *Machine) do(cmd command) error {
	cmd.done = make(chan error, 1)
	select {
	case m.cmds <- cmd:
		select {
		case err := <-cmd.done:
			return err
		case <-m.stopped:
			return ErrStopped
		}
	case <-m.stopped:
		return ErrStopped
	}
}

func (m *Machine) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdInitialize:
		return m.initialize()
	case cmdConnect:
		return m.connect(cmd.target)
	case cmdDisconnect:
		m.disconnect()
		return nil
	default:
		return nil
	}
}

func (m *Machine) initialize() error {
	switch m.state {
	case StateIdle, StateDisconnected, StateFailed:
	default:
		return fmt.Errorf("link: initialize not allowed in state %s", m.state)
	}

	m.setState(StateInitializing)
	m.setFailure(nil)
	if err := m.strategy.Initialize(); err != nil {
		m.fail(err)
		return err
	}
	m.setState(StateReady)
	return nil
}

func (m *Machine) connect(target string) error {
	if m.state != StateReady {
		return fmt.Errorf("link: connect not allowed in state %s", m.state)
	}

	// Target validation happens before the transport is contacted.
	if target == "" && m.strategy.RequiresTarget() {
		cerr := transport.NewConnectError(transport.InvalidTarget,
			errors.New("transport requires a device address"))
		m.fail(cerr)
		return cerr
	}

	m.setState(StateConnecting)
	m.connectGen = m.gen
	if err := m.strategy.Connect(target); err != nil {
		var cerr *transport.ConnectError
		if !errors.As(err, &cerr) {
			err = transport.NewConnectError(transport.TransportRejected, err)
		}
		m.fail(err)
		return err
	}
	m.armTimer()
	return nil
}

func (m *Machine) disconnect() {
	switch m.state {
	case StateConnected, StateReceiving:
		m.setState(StateDisconnecting)
		m.releaseTransport()
		m.setState(StateDisconnected)
		m.notify(false)
	case StateConnecting:
		// Abandon the in-flight attempt; a late success is discarded
		// by the generation bump and released again on arrival.
		m.stopTimer()
		m.releaseTransport()
		m.setState(StateDisconnected)
	default:
		// Idempotent: nothing held, nothing emitted.
	}
}

func (m *Machine) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		if m.state == StateConnecting && m.connectGen == m.gen {
			m.stopTimer()
			m.setState(StateConnected)
			m.notify(true)
			return
		}
		// Stale completion after disconnect: treat as an immediate
		// subsequent disconnect, never resurrect the connection.
		m.log.Debug().Msg("discarding stale connect completion")
		m.strategy.Disconnect()

	case transport.EventConnectFailed:
		if m.state == StateConnecting && m.connectGen == m.gen {
			m.stopTimer()
			m.fail(ev.Err)
		}

	case transport.EventChunk:
		if m.state == StateConnected {
			m.setState(StateReceiving)
		}
		if m.state != StateReceiving {
			return
		}
		m.ingest(ev.Chunk)

	case transport.EventDisconnected:
		if !m.state.IsConnected() {
			return
		}
		m.setState(StateDisconnecting)
		m.releaseTransport()
		m.setState(StateDisconnected)
		m.notify(false)

	case transport.EventFault:
		m.stopTimer()
		m.releaseTransport()
		m.setFailure(ev.Err)
		m.setState(StateFailed)
		m.notify(false)
		m.sink.OnError(ev.Err)
	}
}

// ingest runs the framer and decoder over one chunk. Decode and framing
// errors are reported and recovered locally; they never touch the
// connection state.
func (m *Machine) ingest(chunk transport.Chunk) {
	pkts, err := m.framer.Push(chunk.Data, chunk.Signal)
	for _, pkt := range pkts {
		rec, derr := m.dec.Decode(pkt)
		if derr != nil {
			m.sink.OnError(derr)
			continue
		}
		m.sink.OnTelemetryReceived(rec)
	}
	if err != nil {
		m.sink.OnError(err)
	}
}

func (m *Machine) handleConnectTimeout() {
	m.timer = nil
	if m.state != StateConnecting {
		return
	}
	m.releaseTransport()
	cerr := transport.NewConnectError(transport.Timeout,
		fmt.Errorf("no completion within %s", m.connectTimeout))
	m.fail(cerr)
}

// releaseTransport releases the strategy exactly once per attempt: the
// generation bump marks every event from the old attempt as stale, and the
// framer's partial packet never survives a reconnection boundary.
func (m *Machine) releaseTransport() {
	m.gen++
	m.strategy.Disconnect()
	m.framer.Reset()
}

func (m *Machine) fail(err error) {
	m.setFailure(err)
	m.setState(StateFailed)
	m.notify(false)
	m.sink.OnError(err)
}

// notify emits at most one sink notification per observable connectivity
// edge, regardless of how many internal transitions occur.
func (m *Machine) notify(connected bool) {
	if m.notifiedConnected == connected {
		return
	}
	m.notifiedConnected = connected
	m.sink.OnConnectionStateChanged(connected)
}

func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	m.log.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("link state")
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Machine) setFailure(err error) {
	m.mu.Lock()
	m.failure = err
	m.mu.Unlock()
}

func (m *Machine) armTimer() {
	m.stopTimer()
	m.timer = time.NewTimer(m.connectTimeout)
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) teardown() {
	m.stopTimer()
	if m.state.IsConnected() || m.state == StateConnecting {
		m.releaseTransport()
	}
	m.setState(StateDisconnected)
	m.notify(false)
}
