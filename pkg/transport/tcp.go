package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TCP connects to an ESP32 relay bridged over WiFi/TCP. Reads are raw
// stream chunks, so the link uses the delimited-stream framing policy.
type TCP struct {
	dialTimeout time.Duration
	readBuf     int
	log         zerolog.Logger
	events      chan Event

	mu          sync.Mutex
	conn        net.Conn
	initialized bool
	gen         uint64
}

type TCPOption func(*TCP)

func WithDialTimeout(d time.Duration) TCPOption {
	return func(t *TCP) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

func WithReadBuffer(n int) TCPOption {
	return func(t *TCP) {
		if n > 0 {
			t.readBuf = n
		}
	}
}

func WithLogger(log zerolog.Logger) TCPOption {
	return func(t *TCP) {
		t.log = log
	}
}

func NewTCP(opts ...TCPOption) *TCP {
	t := &TCP{
		dialTimeout: 5 * time.Second,
		readBuf:     4096,
		log:         zerolog.Nop(),
		events:      make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TCP) Initialize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initialized = true
	return nil
}

func (t *TCP) RequiresTarget() bool { return true }

func (t *TCP) Events() <-chan Event { return t.events }

func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect starts an async dial to target (host:port). The outcome arrives
// on Events; a non-nil return means the attempt never started.
func (t *TCP) Connect(target string) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}
	if target == "" {
		t.mu.Unlock()
		return NewConnectError(InvalidTarget, errors.New("tcp transport needs host:port"))
	}
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	go t.dial(target, gen)
	return nil
}

func (t *TCP) dial(target string, gen uint64) {
	conn, err := net.DialTimeout("tcp", target, t.dialTimeout)
	if err != nil {
		t.mu.Lock()
		stale := gen != t.gen
		t.mu.Unlock()
		if stale {
			return
		}
		t.emit(Event{Kind: EventConnectFailed, Err: NewConnectError(TransportRejected, err)})
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		// Disconnected while the dial was in flight.
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.emit(Event{Kind: EventConnected})
	go t.readLoop(conn, gen)
}

func (t *TCP) readLoop(conn net.Conn, gen uint64) {
	buf := make([]byte, t.readBuf)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			t.emit(Event{Kind: EventChunk, Chunk: Chunk{Data: data}})
		}
		if err == nil {
			continue
		}

		t.mu.Lock()
		stale := gen != t.gen
		if !stale {
			t.conn = nil
			t.gen++
		}
		t.mu.Unlock()
		if stale {
			return
		}

		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			t.emit(Event{Kind: EventDisconnected})
		} else {
			t.emit(Event{Kind: EventFault, Err: fmt.Errorf("tcp read: %w", err)})
		}
		return
	}
}

// Disconnect closes the current connection, if any. Idempotent.
func (t *TCP) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.gen++
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (t *TCP) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.log.Warn().Str("event", ev.Kind.String()).Msg("transport event dropped, consumer too slow")
	}
}
