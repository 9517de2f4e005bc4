// Package config loads the gateway configuration from a TOML file, fills in
// defaults and applies environment overrides. Missing files are not an
// error; the built-in defaults run a usable gateway out of the box.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"mavgate/pkg/mavlink"
)

const DefaultConfigPath = "mavgate.toml"

type Config struct {
	Connection string          `toml:"connection"`
	WebSocket  WebSocketConfig `toml:"websocket"`
	Filter     FilterConfig    `toml:"filter"`
	Transport  TransportConfig `toml:"transport"`
	Log        LogConfig       `toml:"log"`
	NATS       NATSConfig      `toml:"nats"`
	Metrics    MetricsConfig   `toml:"metrics"`

	configPath string `toml:"-"`
}

type WebSocketConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Path           string   `toml:"path"`
	SendBuf        int      `toml:"send_buf"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type FilterConfig struct {
	Allow   []string `toml:"allow"`
	Ignore  []string `toml:"ignore"`
	MaxRate float64  `toml:"max_rate"`
}

type TransportConfig struct {
	Reconnect    string `toml:"reconnect"`
	ReconnectMax string `toml:"reconnect_max"`
	Buf          int    `toml:"buf"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type NATSConfig struct {
	URL string `toml:"url"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

func Default() Config {
	return Config{
		Connection: "udpin:0.0.0.0:14551",
		WebSocket: WebSocketConfig{
			Host:    "0.0.0.0",
			Port:    8765,
			Path:    "/ws",
			SendBuf: 256,
		},
		Filter: FilterConfig{
			MaxRate: 500,
		},
		Transport: TransportConfig{
			Reconnect:    "1s",
			ReconnectMax: "30s",
			Buf:          256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path, falling back to defaults when the
// file does not exist. Environment overrides are applied either way.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.configPath = path

	exists := true
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, false, fmt.Errorf("read config: %w", err)
		}
		exists = false
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}

	cfg.configPath = path
	cfg.normalize()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, exists, err
	}
	return cfg, exists, nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

// WebSocketAddr returns the host:port the gateway listens on.
func (cfg *Config) WebSocketAddr() string {
	return net.JoinHostPort(cfg.WebSocket.Host, strconv.Itoa(cfg.WebSocket.Port))
}

func (cfg *Config) ReconnectInterval() time.Duration {
	d, _ := time.ParseDuration(cfg.Transport.Reconnect)
	return d
}

func (cfg *Config) ReconnectMax() time.Duration {
	d, _ := time.ParseDuration(cfg.Transport.ReconnectMax)
	return d
}

func (cfg *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (cfg *Config) normalize() {
	def := Default()

	if cfg.Connection == "" {
		cfg.Connection = def.Connection
	}
	if cfg.WebSocket.Host == "" {
		cfg.WebSocket.Host = def.WebSocket.Host
	}
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = def.WebSocket.Port
	}
	if cfg.WebSocket.Path == "" {
		cfg.WebSocket.Path = def.WebSocket.Path
	}
	if cfg.WebSocket.SendBuf <= 0 {
		cfg.WebSocket.SendBuf = def.WebSocket.SendBuf
	}
	if cfg.Transport.Reconnect == "" {
		cfg.Transport.Reconnect = def.Transport.Reconnect
	}
	if cfg.Transport.ReconnectMax == "" {
		cfg.Transport.ReconnectMax = def.Transport.ReconnectMax
	}
	if cfg.Transport.Buf <= 0 {
		cfg.Transport.Buf = def.Transport.Buf
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}

	cfg.Filter.Allow = normalizeNames(cfg.Filter.Allow)
	cfg.Filter.Ignore = normalizeNames(cfg.Filter.Ignore)
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv("MAVLINK_CONNECTION"); v != "" {
		cfg.Connection = v
	}
	if v := os.Getenv("WEBSOCKET_HOST"); v != "" {
		cfg.WebSocket.Host = v
	}
	if v := os.Getenv("WEBSOCKET_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBSOCKET_PORT: %w", err)
		}
		cfg.WebSocket.Port = port
	}
	if v := os.Getenv("MESSAGE_FILTER"); v != "" {
		cfg.Filter.Allow = normalizeNames(strings.Split(v, ","))
	}
	if v := os.Getenv("MESSAGE_IGNORE"); v != "" {
		cfg.Filter.Ignore = normalizeNames(strings.Split(v, ","))
	}
	if v := os.Getenv("MAX_MESSAGE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MAX_MESSAGE_RATE: %w", err)
		}
		cfg.Filter.MaxRate = rate
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	return nil
}

func (cfg *Config) Validate() error {
	if _, err := mavlink.ParseEndpoint(cfg.Connection); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if cfg.WebSocket.Port < 1 || cfg.WebSocket.Port > 65535 {
		return fmt.Errorf("websocket.port out of range: %d", cfg.WebSocket.Port)
	}
	if !strings.HasPrefix(cfg.WebSocket.Path, "/") {
		return fmt.Errorf("websocket.path must start with /: %q", cfg.WebSocket.Path)
	}
	if cfg.Filter.MaxRate < 0 {
		return fmt.Errorf("filter.max_rate must not be negative: %g", cfg.Filter.MaxRate)
	}
	if d, err := time.ParseDuration(cfg.Transport.Reconnect); err != nil || d <= 0 {
		return fmt.Errorf("transport.reconnect invalid: %q", cfg.Transport.Reconnect)
	}
	if d, err := time.ParseDuration(cfg.Transport.ReconnectMax); err != nil || d <= 0 {
		return fmt.Errorf("transport.reconnect_max invalid: %q", cfg.Transport.ReconnectMax)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level invalid: %q", cfg.Log.Level)
	}
	return nil
}

// normalizeNames upper-cases message names and drops empty entries so that
// "attitude, heartbeat" from an env var matches decoder output.
func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
