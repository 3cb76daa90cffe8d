package sink

import (
	"sync"

	"loralink/pkg/telemetry"
)

// FakePublisher records published payloads for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Records contains every telemetry record that was published.
	Records []telemetry.Record

	// Status contains every status event that was published.
	Status []bool

	// PublishErr, if set, is returned by Publish and PublishStatus.
	PublishErr error

	// Closed tracks whether Close was called.
	Closed bool
}

func (f *FakePublisher) Publish(rec telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Records = append(f.Records, rec)
	return nil
}

func (f *FakePublisher) PublishStatus(connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Status = append(f.Status, connected)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Published returns a copy of the recorded telemetry.
func (f *FakePublisher) Published() []telemetry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telemetry.Record(nil), f.Records...)
}
