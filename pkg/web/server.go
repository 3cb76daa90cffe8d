package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// Server serves the daemon status over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.json" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatJSON(snap))
}

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Connected     bool        `json:"connected"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Records       int         `json:"records"`
	Errors        int         `json:"errors"`
	LastError     string      `json:"last_error,omitempty"`
	Last          *RecordJSON `json:"last,omitempty"`
}

// RecordJSON is the JSON representation of the most recent record.
type RecordJSON struct {
	Timestamp string  `json:"ts"`
	DeviceID  string  `json:"dev,omitempty"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
	Speed     float64 `json:"spd"`
	RSSI      int     `json:"rssi"`
	SNR       int     `json:"snr"`
	Battery   int     `json:"bat"`
}

func formatJSON(snap Snapshot) []byte {
	sj := StatusJSON{
		Status: StatusInner{
			Connected:     snap.Connected,
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			Records:       snap.RecordCount,
			Errors:        snap.ErrorCount,
			LastError:     snap.LastError,
		},
	}

	if snap.LastRecord != nil {
		rec := snap.LastRecord
		sj.Status.Last = &RecordJSON{
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
			DeviceID:  rec.DeviceID,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			Altitude:  rec.Altitude,
			Speed:     rec.Speed,
			RSSI:      rec.RSSI,
			SNR:       rec.SNR,
			Battery:   rec.Battery,
		}
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
