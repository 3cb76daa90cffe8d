package sink

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"loralink/pkg/telemetry"
)

// JSONLWriter appends one JSON line per record, for replay and analysis.
type JSONLWriter struct {
	enc *json.Encoder
}

type jsonlRecord struct {
	TS   string  `json:"ts"`
	Dev  string  `json:"dev,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  float64 `json:"alt"`
	Spd  float64 `json:"spd"`
	RSSI int     `json:"rssi"`
	SNR  int     `json:"snr"`
	Bat  int     `json:"bat"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write appends a single record.
func (j *JSONLWriter) Write(rec telemetry.Record) error {
	return j.enc.Encode(jsonlRecord{
		TS:   rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Dev:  rec.DeviceID,
		Lat:  rec.Latitude,
		Lon:  rec.Longitude,
		Alt:  rec.Altitude,
		Spd:  rec.Speed,
		RSSI: rec.RSSI,
		SNR:  rec.SNR,
		Bat:  rec.Battery,
	})
}

// Consume drains a hub subscription until the context ends or the channel
// closes.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan telemetry.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-in:
			if !ok {
				return
			}
			_ = j.Write(rec)
		}
	}
}
