package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"loralink/pkg/telemetry"
)

// syncWriter makes a bytes.Buffer safe to read after the pipeline
// goroutines may still be flushing.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestSimRecordStaysInRange(t *testing.T) {
	sim := orbit{centerLat: simCenterLat, centerLon: simCenterLon}
	for seq := 0; seq < 20000; seq += 37 {
		rec := sim.record(seq)
		if rec.Latitude < -90 || rec.Latitude > 90 {
			t.Fatalf("seq %d: latitude out of range: %v", seq, rec.Latitude)
		}
		if rec.Longitude < -180 || rec.Longitude > 180 {
			t.Fatalf("seq %d: longitude out of range: %v", seq, rec.Longitude)
		}
		if rec.Speed < 0 {
			t.Fatalf("seq %d: negative speed: %v", seq, rec.Speed)
		}
		if rec.Battery < 0 || rec.Battery > 100 {
			t.Fatalf("seq %d: battery out of range: %d", seq, rec.Battery)
		}
	}
}

func TestSimRecordSurvivesBinaryRoundTrip(t *testing.T) {
	rec := orbit{centerLat: simCenterLat, centerLon: simCenterLon}.record(42)
	payload := telemetry.AppendBinary(nil, rec, binary.LittleEndian)
	if len(payload) != telemetry.BinarySize {
		t.Fatalf("payload size: got %d, want %d", len(payload), telemetry.BinarySize)
	}

	dec := telemetry.NewDecoder()
	got, err := dec.Decode(telemetry.RawPacket{Bytes: payload})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Battery != rec.Battery {
		t.Fatalf("battery: got %d, want %d", got.Battery, rec.Battery)
	}
	if diff := got.Latitude - rec.Latitude; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("latitude drift: got %v, want %v", got.Latitude, rec.Latitude)
	}
}

func TestSimRunsPipelineEndToEnd(t *testing.T) {
	out := &syncWriter{}
	var errOut bytes.Buffer

	code := run([]string{"sim", "--rate", "10ms", "--count", "3", "--json", "--device", "sim-7"}, out, &errOut)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0 (stderr: %s)", code, errOut.String())
	}

	lines := 0
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec struct {
			Dev string  `json:"dev"`
			Lat float64 `json:"lat"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad jsonl line %q: %v", line, err)
		}
		if rec.Dev != "sim-7" {
			t.Fatalf("device: got %q, want sim-7", rec.Dev)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("jsonl lines: got %d, want 3", lines)
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestSimSplitChunksReassemble(t *testing.T) {
	out := &syncWriter{}
	var errOut bytes.Buffer

	code := run([]string{"sim", "--rate", "10ms", "--count", "2", "--split"}, out, &errOut)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0 (stderr: %s)", code, errOut.String())
	}

	lines := 0
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("jsonl lines: got %d, want 2", lines)
	}
}
