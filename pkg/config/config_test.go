package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, exists, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if exists {
		t.Fatal("exists = true for missing file")
	}
	if cfg.Connection != "udpin:0.0.0.0:14551" {
		t.Errorf("default connection = %q", cfg.Connection)
	}
	if addr := cfg.WebSocketAddr(); addr != "0.0.0.0:8765" {
		t.Errorf("default addr = %q", addr)
	}
	if cfg.Filter.MaxRate != 500 {
		t.Errorf("default max_rate = %g", cfg.Filter.MaxRate)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mavgate.toml")
	body := `
connection = "tcp:fc.local:5760"

[websocket]
host = "127.0.0.1"
port = 9000

[filter]
allow = ["attitude", "HEARTBEAT"]
max_rate = 25

[transport]
reconnect = "250ms"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection != "tcp:fc.local:5760" {
		t.Errorf("connection = %q", cfg.Connection)
	}
	if cfg.ConfigPath() != path {
		t.Errorf("config path = %q, want %q", cfg.ConfigPath(), path)
	}
	if addr := cfg.WebSocketAddr(); addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q", addr)
	}
	if len(cfg.Filter.Allow) != 2 || cfg.Filter.Allow[0] != "ATTITUDE" {
		t.Errorf("allow list not normalized: %v", cfg.Filter.Allow)
	}
	if cfg.Filter.MaxRate != 25 {
		t.Errorf("max_rate = %g", cfg.Filter.MaxRate)
	}
	if got := cfg.ReconnectInterval().String(); got != "250ms" {
		t.Errorf("reconnect = %s", got)
	}
	if cfg.LogLevel() != zerolog.DebugLevel {
		t.Errorf("log level = %s", cfg.LogLevel())
	}
	// Unset sections keep defaults.
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("path = %q", cfg.WebSocket.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAVLINK_CONNECTION", "/dev/ttyUSB0:921600")
	t.Setenv("WEBSOCKET_PORT", "8080")
	t.Setenv("MESSAGE_FILTER", "attitude, gps_raw_int")
	t.Setenv("MAX_MESSAGE_RATE", "10")
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")

	cfg, _, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Connection != "/dev/ttyUSB0:921600" {
		t.Errorf("connection = %q", cfg.Connection)
	}
	if cfg.WebSocket.Port != 8080 {
		t.Errorf("port = %d", cfg.WebSocket.Port)
	}
	want := []string{"ATTITUDE", "GPS_RAW_INT"}
	if len(cfg.Filter.Allow) != len(want) {
		t.Fatalf("allow = %v", cfg.Filter.Allow)
	}
	for i := range want {
		if cfg.Filter.Allow[i] != want[i] {
			t.Errorf("allow[%d] = %q, want %q", i, cfg.Filter.Allow[i], want[i])
		}
	}
	if cfg.Filter.MaxRate != 10 {
		t.Errorf("max_rate = %g", cfg.Filter.MaxRate)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad connection", func(c *Config) { c.Connection = "carrier-pigeon:roof" }},
		{"bad scheme", func(c *Config) { c.Connection = "udp://0.0.0.0:14550" }},
		{"port too large", func(c *Config) { c.WebSocket.Port = 70000 }},
		{"relative path", func(c *Config) { c.WebSocket.Path = "ws" }},
		{"negative rate", func(c *Config) { c.Filter.MaxRate = -1 }},
		{"bad reconnect", func(c *Config) { c.Transport.Reconnect = "soon" }},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestParseErrorIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("connection = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadOrDefault(path); err == nil {
		t.Fatal("broken TOML accepted")
	}
}
