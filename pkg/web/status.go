// Package web provides an HTTP status endpoint for the daemon. It is
// read-only: a thread-safe tracker accumulates link state and counters,
// and handlers render a point-in-time snapshot.
package web

import (
	"sync"
	"time"

	"loralink/pkg/sink"
	"loralink/pkg/telemetry"
)

// Snapshot is a point-in-time view of daemon state. It is a value type,
// safe to use after the lock is released.
type Snapshot struct {
	Connected   bool
	LastRecord  *telemetry.Record
	RecordCount int
	ErrorCount  int
	LastError   string
	StartTime   time.Time
	Now         time.Time
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	connected bool
	last      *telemetry.Record
	records   int
	errors    int
	lastErr   string
	startTime time.Time
}

// NewTracker creates a Tracker with the given start time.
func NewTracker(startTime time.Time) *Tracker {
	return &Tracker{startTime: startTime}
}

// SetConnected records the link connectivity state.
func (t *Tracker) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// Observe records one decoded telemetry record.
func (t *Tracker) Observe(rec telemetry.Record) {
	t.mu.Lock()
	copied := rec
	t.last = &copied
	t.records++
	t.mu.Unlock()
}

// ObserveError records one pipeline error.
func (t *Tracker) ObserveError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.errors++
	t.lastErr = err.Error()
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Connected:   t.connected,
		RecordCount: t.records,
		ErrorCount:  t.errors,
		LastError:   t.lastErr,
		StartTime:   t.startTime,
		Now:         time.Now(),
	}
	if t.last != nil {
		copied := *t.last
		snap.LastRecord = &copied
	}
	return snap
}

// Sink adapts the tracker to the telemetry sink interface.
func (t *Tracker) Sink() sink.Sink {
	return sink.Funcs{
		StateChanged: t.SetConnected,
		Telemetry:    t.Observe,
		Error:        t.ObserveError,
	}
}
