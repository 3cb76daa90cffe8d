// Package config loads the daemon configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const DefaultConfigPath = "loralink.toml"

type Config struct {
	Link Link `toml:"link"`
	MQTT MQTT `toml:"mqtt"`
	WS   WS   `toml:"ws"`
	Web  Web  `toml:"web"`
	Log  Log  `toml:"log"`
}

type Link struct {
	// Transport selects the relay transport: "tcp", "mockble" or "mockusb".
	Transport string `toml:"transport"`
	Target    string `toml:"target"`
	// Framing selects the chunk policy: "stream" or "chunk".
	Framing        string `toml:"framing"`
	Endian         string `toml:"endian"`
	ConnectTimeout string `toml:"connect_timeout"`
	MaxFrameBuffer int    `toml:"max_frame_buffer"`
	CRC            bool   `toml:"crc"`
}

type MQTT struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Topic       string `toml:"topic"`
	StatusTopic string `toml:"status_topic"`
}

type WS struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	SendBuf int    `toml:"send_buf"`
}

type Web struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func Default() Config {
	return Config{
		Link: Link{
			Transport:      "tcp",
			Target:         "127.0.0.1:9100",
			Framing:        "stream",
			Endian:         "little",
			ConnectTimeout: "10s",
			MaxFrameBuffer: 4096,
		},
		MQTT: MQTT{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "lorad",
			Topic:       "loralink/telemetry",
			StatusTopic: "loralink/status",
		},
		WS: WS{
			Addr:    "127.0.0.1:8765",
			SendBuf: 64,
		},
		Web: Web{
			Addr: "127.0.0.1:8080",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults without error so the daemon can start unconfigured.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.Link.Transport {
	case "tcp", "mockble", "mockusb":
	default:
		return fmt.Errorf("link.transport unknown: %q", cfg.Link.Transport)
	}
	switch cfg.Link.Framing {
	case "stream", "chunk":
	default:
		return fmt.Errorf("link.framing unknown: %q", cfg.Link.Framing)
	}
	switch cfg.Link.Endian {
	case "little", "big":
	default:
		return fmt.Errorf("link.endian unknown: %q", cfg.Link.Endian)
	}
	if _, err := cfg.Link.ConnectTimeoutDuration(); err != nil {
		return fmt.Errorf("link.connect_timeout: %w", err)
	}
	if cfg.Link.MaxFrameBuffer <= 0 {
		return fmt.Errorf("link.max_frame_buffer must be positive: %d", cfg.Link.MaxFrameBuffer)
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker required when mqtt is enabled")
	}
	return nil
}

func (l Link) ConnectTimeoutDuration() (time.Duration, error) {
	if l.ConnectTimeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(l.ConnectTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive: %s", l.ConnectTimeout)
	}
	return d, nil
}
