package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"loralink/pkg/framing"
	"loralink/pkg/link"
	"loralink/pkg/sink"
	"loralink/pkg/telemetry"
	"loralink/pkg/transport"
)

// Simulated tracker: a slow orbit around a fixed point with a gentle
// altitude swell and a linearly draining battery.
const (
	simCenterLat = 31.2304
	simCenterLon = 121.4737

	simOrbitRadiusDeg = 0.01
	simOrbitFreqHz    = 0.02

	simBaseAltitudeM  = 12.0
	simAltSwellM      = 3.0
	simAltFreqHz      = 0.05
	simGroundSpeedMps = 1.4

	simBatteryStart     = 100
	simBatteryDrainStep = 120 // records per percent
)

func runSim(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	rate := fs.Duration("rate", 1*time.Second, "interval between simulated packets")
	count := fs.Int("count", 0, "stop after N packets (0 = run until interrupted)")
	asJSON := fs.Bool("json", false, "emit JSON packets instead of binary")
	device := fs.String("device", "esp32-01", "device id for JSON packets")
	split := fs.Bool("split", false, "split each packet across two chunks")
	lat := fs.Float64("lat", simCenterLat, "orbit center latitude")
	lon := fs.Float64("lon", simCenterLon, "orbit center longitude")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim := orbit{centerLat: *lat, centerLon: *lon}
	strategy := transport.NewMockUSB()
	framer := framing.NewStream()
	jsonl := sink.NewJSONLWriter(stdout)

	done := make(chan struct{})
	sent := 0
	s := sink.Funcs{
		Telemetry: func(rec telemetry.Record) {
			_ = jsonl.Write(rec)
		},
		Error: func(err error) {
			fmt.Fprintln(stderr, "sim:", err)
		},
	}

	machine := link.NewMachine(strategy, framer, s)
	go machine.Run(ctx)

	if err := machine.Initialize(); err != nil {
		fmt.Fprintln(stderr, "sim:", err)
		return 1
	}
	if err := machine.Connect(""); err != nil {
		fmt.Fprintln(stderr, "sim:", err)
		return 1
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(*rate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				feedPacket(strategy, sim, sent, *asJSON, *device, *split)
				sent++
				if *count > 0 && sent >= *count {
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
		// Give the pipeline a beat to drain the last packet.
		time.Sleep(50 * time.Millisecond)
	}
	return 0
}

func feedPacket(strategy *transport.Mock, sim orbit, seq int, asJSON bool, device string, split bool) {
	rec := sim.record(seq)
	sig := &telemetry.Signal{RSSI: -70 - seq%20, SNR: 9 - seq%5}

	var payload []byte
	if asJSON {
		rec.DeviceID = device
		payload, _ = telemetry.EncodeJSON(rec)
	} else {
		payload = telemetry.AppendBinary(nil, rec, binary.LittleEndian)
	}

	if split && len(payload) > 5 {
		strategy.Feed(payload[:5], sig)
		strategy.Feed(payload[5:], sig)
		return
	}
	strategy.Feed(payload, sig)
}

// orbit generates the simulated track around a center point.
type orbit struct {
	centerLat float64
	centerLon float64
}

func (o orbit) record(seq int) telemetry.Record {
	t := float64(seq)
	angle := 2.0 * math.Pi * simOrbitFreqHz * t

	bat := simBatteryStart - seq/simBatteryDrainStep
	if bat < 0 {
		bat = 0
	}

	return telemetry.Record{
		Latitude:  o.centerLat + simOrbitRadiusDeg*math.Sin(angle),
		Longitude: o.centerLon + simOrbitRadiusDeg*math.Cos(angle),
		Altitude:  simBaseAltitudeM + simAltSwellM*math.Sin(2.0*math.Pi*simAltFreqHz*t),
		Speed:     simGroundSpeedMps,
		Battery:   bat,
	}
}
