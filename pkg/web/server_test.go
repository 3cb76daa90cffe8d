package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loralink/pkg/telemetry"
)

func newTestServer(t *testing.T) (*httptest.Server, *Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetConnected(true)
	tr.Observe(telemetry.Record{
		Latitude:  31.2304,
		Longitude: 121.4737,
		Battery:   92,
		DeviceID:  "esp32-01",
		RSSI:      -71,
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	tr.ObserveError(errors.New("decode: field lat out of range"))

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.Connected {
		t.Error("expected Connected=true")
	}
	if sj.Status.Records != 1 {
		t.Errorf("Records: got %d, want 1", sj.Status.Records)
	}
	if sj.Status.Errors != 1 {
		t.Errorf("Errors: got %d, want 1", sj.Status.Errors)
	}
	if sj.Status.LastError == "" {
		t.Error("expected LastError to be set")
	}
	if sj.Status.Last == nil {
		t.Fatal("expected Last record")
	}
	if sj.Status.Last.Latitude != 31.2304 {
		t.Errorf("Last.Latitude: got %v, want 31.2304", sj.Status.Last.Latitude)
	}
	if sj.Status.Last.DeviceID != "esp32-01" {
		t.Errorf("Last.DeviceID: got %q, want esp32-01", sj.Status.Last.DeviceID)
	}
	if sj.Status.Last.RSSI != -71 {
		t.Errorf("Last.RSSI: got %d, want -71", sj.Status.Last.RSSI)
	}
}

func TestJSONEndpointEmpty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	var sj StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Connected {
		t.Error("expected Connected=false")
	}
	if sj.Status.Last != nil {
		t.Errorf("expected no Last record, got %+v", sj.Status.Last)
	}
	if sj.Status.LastError != "" {
		t.Errorf("expected empty LastError, got %q", sj.Status.LastError)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestTrackerSinkAdapter(t *testing.T) {
	tr := NewTracker(time.Now())
	s := tr.Sink()

	s.OnConnectionStateChanged(true)
	s.OnTelemetryReceived(telemetry.Record{Battery: 50})
	s.OnError(errors.New("boom"))

	snap := tr.Snapshot()
	if !snap.Connected {
		t.Error("expected connected")
	}
	if snap.RecordCount != 1 || snap.ErrorCount != 1 {
		t.Errorf("counts: records=%d errors=%d", snap.RecordCount, snap.ErrorCount)
	}
	if snap.LastRecord == nil || snap.LastRecord.Battery != 50 {
		t.Errorf("last record: %+v", snap.LastRecord)
	}
}
