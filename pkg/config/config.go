// Package config loads the livecard YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvToken = "LIVECARD_TOKEN"
	EnvURL   = "LIVECARD_URL"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration.
type Config struct {
	Host      HostConfig     `yaml:"host"`
	Engine    EngineConfig   `yaml:"engine"`
	Timers    TimersConfig   `yaml:"timers"`
	Log       LogConfig      `yaml:"log"`
	Templates []TemplateSpec `yaml:"templates"`
}

// HostConfig configures the host connection.
type HostConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"` //nolint:gosec // configuration field, not a hardcoded secret

	// Discover finds the host over mDNS when URL is empty.
	Discover bool `yaml:"discover"`

	// RateLimit is outbound commands per second (0 = unlimited).
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// EngineConfig configures the template engine.
type EngineConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TimersConfig configures the countdown manager.
type TimersConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Presets      []TimerPreset `yaml:"presets"`
}

// TimerPreset is a countdown known at startup.
type TimerPreset struct {
	ID        string `yaml:"id"`
	Seconds   int    `yaml:"seconds"`
	Autostart bool   `yaml:"autostart"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a slog level name: debug, info, warn or error.
	Level string `yaml:"level"`

	// Trace is the path of the CBOR event trace. Empty disables tracing.
	Trace string `yaml:"trace"`
}

// TemplateSpec is a subscription opened at startup.
type TemplateSpec struct {
	Key       string         `yaml:"key"`
	Template  string         `yaml:"template"`
	Variables map[string]any `yaml:"variables"`
	Scope     map[string]any `yaml:"scope"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Host: HostConfig{
			RateLimit:        20,
			Burst:            10,
			HandshakeTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			CacheTTL: 2 * time.Second,
		},
		Timers: TimersConfig{
			TickInterval: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of Default. ${VAR} references are expanded
// before parsing so secrets can stay in the environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// ApplyEnv fills the host URL and token from the environment when they are
// not set in the file.
func (c *Config) ApplyEnv() {
	if c.Host.Token == "" {
		c.Host.Token = os.Getenv(EnvToken)
	}
	if c.Host.URL == "" {
		c.Host.URL = os.Getenv(EnvURL)
	}
}

// SlogLevel parses Log.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return level, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Host.URL == "" && !c.Host.Discover {
		return fmt.Errorf("%w: host.url is required unless host.discover is set", ErrInvalidConfig)
	}
	if c.Host.RateLimit < 0 {
		return fmt.Errorf("%w: host.rate_limit must not be negative", ErrInvalidConfig)
	}
	if c.Host.Burst < 0 {
		return fmt.Errorf("%w: host.burst must not be negative", ErrInvalidConfig)
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("%w: engine.cache_ttl must be positive", ErrInvalidConfig)
	}
	if c.Timers.TickInterval <= 0 {
		return fmt.Errorf("%w: timers.tick_interval must be positive", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	keys := make(map[string]struct{}, len(c.Templates))
	for i, t := range c.Templates {
		if t.Key == "" {
			return fmt.Errorf("%w: templates[%d]: key is required", ErrInvalidConfig, i)
		}
		if t.Template == "" {
			return fmt.Errorf("%w: template %q: template text is required", ErrInvalidConfig, t.Key)
		}
		if _, dup := keys[t.Key]; dup {
			return fmt.Errorf("%w: duplicate template key %q", ErrInvalidConfig, t.Key)
		}
		keys[t.Key] = struct{}{}
	}

	ids := make(map[string]struct{}, len(c.Timers.Presets))
	for i, p := range c.Timers.Presets {
		if p.ID == "" {
			return fmt.Errorf("%w: timers.presets[%d]: id is required", ErrInvalidConfig, i)
		}
		if p.Seconds < 0 {
			return fmt.Errorf("%w: timer %q: seconds must not be negative", ErrInvalidConfig, p.ID)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: duplicate timer id %q", ErrInvalidConfig, p.ID)
		}
		ids[p.ID] = struct{}{}
	}

	return nil
}
