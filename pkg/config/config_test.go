package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"loralink/pkg/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loralink.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := config.Default()
	if cfg.Link.Transport != def.Link.Transport {
		t.Errorf("transport: got %q, want %q", cfg.Link.Transport, def.Link.Transport)
	}
	if cfg.Link.MaxFrameBuffer != 4096 {
		t.Errorf("max_frame_buffer: got %d, want 4096", cfg.Link.MaxFrameBuffer)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[link]
transport = "mockusb"
framing = "chunk"
endian = "big"
connect_timeout = "3s"
crc = true

[mqtt]
enabled = true
broker = "tcp://10.0.0.5:1883"

[ws]
enabled = true
addr = "127.0.0.1:9900"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Link.Transport != "mockusb" || cfg.Link.Framing != "chunk" || cfg.Link.Endian != "big" {
		t.Errorf("link overrides not applied: %+v", cfg.Link)
	}
	if !cfg.Link.CRC {
		t.Error("expected crc=true")
	}
	d, err := cfg.Link.ConnectTimeoutDuration()
	if err != nil || d != 3*time.Second {
		t.Errorf("connect timeout: got %v, %v", d, err)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://10.0.0.5:1883" {
		t.Errorf("mqtt overrides not applied: %+v", cfg.MQTT)
	}
	// Untouched sections keep their defaults.
	if cfg.Web.Addr != "127.0.0.1:8080" {
		t.Errorf("web.addr default lost: %q", cfg.Web.Addr)
	}
	if cfg.MQTT.Topic != "loralink/telemetry" {
		t.Errorf("mqtt.topic default lost: %q", cfg.MQTT.Topic)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown transport", "[link]\ntransport = \"carrier-pigeon\"\n"},
		{"unknown framing", "[link]\nframing = \"cobs\"\n"},
		{"unknown endian", "[link]\nendian = \"middle\"\n"},
		{"bad timeout", "[link]\nconnect_timeout = \"soon\"\n"},
		{"negative timeout", "[link]\nconnect_timeout = \"-1s\"\n"},
		{"zero buffer", "[link]\nmax_frame_buffer = 0\n"},
		{"mqtt without broker", "[mqtt]\nenabled = true\nbroker = \"\"\n"},
		{"not toml", "{\"link\": {}}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected error for %q", tc.body)
			}
		})
	}
}

func TestConnectTimeoutDefaultWhenEmpty(t *testing.T) {
	var l config.Link
	d, err := l.ConnectTimeoutDuration()
	if err != nil {
		t.Fatalf("ConnectTimeoutDuration: %v", err)
	}
	if d != 10*time.Second {
		t.Errorf("got %v, want 10s", d)
	}
}
