// Package sink defines the consumer side of the pipeline: decoded records
// and connection events flow out of the core to whatever the app layer
// wires in (log, MQTT, websocket bridge, status page).
package sink

import (
	"github.com/rs/zerolog"

	"loralink/pkg/telemetry"
)

// Sink receives decoded records and connection events. All methods are
// invoked from the connection's single serialized context; implementations
// must not block for long.
type Sink interface {
	OnConnectionStateChanged(connected bool)
	OnTelemetryReceived(rec telemetry.Record)
	OnError(err error)
}

// Funcs adapts plain functions to Sink. Nil fields are no-ops.
type Funcs struct {
	StateChanged func(connected bool)
	Telemetry    func(rec telemetry.Record)
	Error        func(err error)
}

func (f Funcs) OnConnectionStateChanged(connected bool) {
	if f.StateChanged != nil {
		f.StateChanged(connected)
	}
}

func (f Funcs) OnTelemetryReceived(rec telemetry.Record) {
	if f.Telemetry != nil {
		f.Telemetry(rec)
	}
}

func (f Funcs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

type multi []Sink

// Multi fans every event out to each sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) OnConnectionStateChanged(connected bool) {
	for _, s := range m {
		s.OnConnectionStateChanged(connected)
	}
}

func (m multi) OnTelemetryReceived(rec telemetry.Record) {
	for _, s := range m {
		s.OnTelemetryReceived(rec)
	}
}

func (m multi) OnError(err error) {
	for _, s := range m {
		s.OnError(err)
	}
}

// NewLogSink returns a sink that writes events to a zerolog logger.
func NewLogSink(log zerolog.Logger) Sink {
	return Funcs{
		StateChanged: func(connected bool) {
			log.Info().Bool("connected", connected).Msg("connection state changed")
		},
		Telemetry: func(rec telemetry.Record) {
			log.Debug().
				Float64("lat", rec.Latitude).
				Float64("lon", rec.Longitude).
				Int("rssi", rec.RSSI).
				Int("bat", rec.Battery).
				Str("dev", rec.DeviceID).
				Msg("telemetry")
		},
		Error: func(err error) {
			log.Warn().Err(err).Msg("link error")
		},
	}
}
