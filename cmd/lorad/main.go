package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"loralink/pkg/bridge/ws"
	"loralink/pkg/config"
	"loralink/pkg/engine"
	"loralink/pkg/framing"
	"loralink/pkg/link"
	"loralink/pkg/sink"
	"loralink/pkg/telemetry"
	"loralink/pkg/transport"
	"loralink/pkg/web"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return runServe([]string{}, stdout, stderr)
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stdout, stderr)
	case "sim":
		return runSim(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runServe(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "TOML config path")
	transportName := fs.String("transport", "", "override link.transport")
	target := fs.String("target", "", "override link.target")
	logPath := fs.String("log", "", "JSONL output path (default: stdout)")
	logLevel := fs.String("log-level", "", "override log.level")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	if *transportName != "" {
		cfg.Link.Transport = *transportName
	}
	if *target != "" {
		cfg.Link.Target = *target
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logPath != "" {
		cfg.Log.Path = *logPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}

	log, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "logger:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := serve(ctx, cfg, stdout, log)
	if err != nil {
		fmt.Fprintln(stderr, "serve:", err)
	}
	return code
}

// serve wires the full pipeline: transport -> link machine -> sinks.
func serve(ctx context.Context, cfg config.Config, stdout io.Writer, log zerolog.Logger) (int, error) {
	strategy, err := newStrategy(cfg.Link, log)
	if err != nil {
		return 1, err
	}

	framer, err := newFramer(cfg.Link)
	if err != nil {
		return 1, err
	}

	timeout, err := cfg.Link.ConnectTimeoutDuration()
	if err != nil {
		return 1, err
	}

	hub := engine.NewHub()
	go hub.Run(ctx)

	tracker := web.NewTracker(time.Now())

	var out io.Writer = stdout
	if cfg.Log.Path != "" {
		file, err := os.Create(cfg.Log.Path)
		if err != nil {
			return 1, fmt.Errorf("open jsonl output: %w", err)
		}
		defer file.Close()
		out = file
	}
	jsonl := sink.NewJSONLWriter(out)
	go jsonl.Consume(ctx, hub.Subscribe())

	sinks := []sink.Sink{
		sink.Funcs{Telemetry: hub.Publish},
		tracker.Sink(),
		sink.NewLogSink(log),
	}

	if cfg.MQTT.Enabled {
		pub, err := sink.NewPahoPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			return 1, fmt.Errorf("mqtt: %w", err)
		}
		defer pub.Close()
		go sink.PumpRecords(ctx, pub, hub.Subscribe(), log)
		sinks = append(sinks, sink.Funcs{
			StateChanged: func(connected bool) {
				if perr := pub.PublishStatus(connected); perr != nil {
					log.Warn().Err(perr).Msg("mqtt status publish failed")
				}
			},
		})
	}

	if cfg.WS.Enabled {
		bridge := ws.NewServer(ws.Config{
			Addr:    cfg.WS.Addr,
			SendBuf: cfg.WS.SendBuf,
		}, hub, log)
		go func() {
			if werr := bridge.Run(ctx); werr != nil {
				log.Error().Err(werr).Msg("websocket bridge stopped")
			}
		}()
	}

	if cfg.Web.Enabled {
		statusSrv := web.New(cfg.Web.Addr, tracker)
		go func() {
			if werr := statusSrv.ListenAndServe(); werr != nil {
				log.Error().Err(werr).Msg("status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			statusSrv.Shutdown(shutdownCtx)
			cancel()
		}()
	}

	machine := link.NewMachine(strategy, framer, sink.Multi(sinks...),
		link.WithConnectTimeout(timeout),
		link.WithDecoder(newDecoder(cfg.Link)),
		link.WithLogger(log),
	)
	go machine.Run(ctx)

	if err := machine.Initialize(); err != nil {
		return 1, fmt.Errorf("initialize transport: %w", err)
	}
	if err := machine.Connect(cfg.Link.Target); err != nil {
		return 1, fmt.Errorf("connect: %w", err)
	}
	log.Info().
		Str("transport", cfg.Link.Transport).
		Str("target", cfg.Link.Target).
		Msg("link started")

	<-ctx.Done()
	return 0, nil
}

func newStrategy(lc config.Link, log zerolog.Logger) (transport.Strategy, error) {
	switch lc.Transport {
	case "tcp":
		return transport.NewTCP(transport.WithLogger(log)), nil
	case "mockble":
		return transport.NewMockBLE(), nil
	case "mockusb":
		return transport.NewMockUSB(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", lc.Transport)
	}
}

func newFramer(lc config.Link) (framing.Framer, error) {
	size := telemetry.BinarySize
	if lc.CRC {
		size = telemetry.BinarySizeCRC
	}
	return framing.New(framing.Policy(lc.Framing),
		framing.WithMaxBuffer(lc.MaxFrameBuffer),
		framing.WithBinarySize(size),
	)
}

func newDecoder(lc config.Link) *telemetry.Decoder {
	order := binary.ByteOrder(binary.LittleEndian)
	if lc.Endian == "big" {
		order = binary.BigEndian
	}
	return telemetry.NewDecoder(telemetry.WithByteOrder(order))
}

func newLogger(lc config.Log, stderr io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", lc.Level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger(), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  lorad serve [--config loralink.toml] [--transport tcp|mockble|mockusb] [--target host:port] [--log file.jsonl] [--log-level debug]")
	fmt.Fprintln(w, "  lorad sim   [--rate 1s] [--count 0] [--json] [--device esp32-01]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve   connect to a relay and run the telemetry pipeline")
	fmt.Fprintln(w, "  sim     run the pipeline against a simulated relay")
}
