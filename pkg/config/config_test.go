package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
host:
  url: http://homeassistant.local:8123
  token: ${TEST_LIVECARD_TOKEN}
  rate_limit: 5
  burst: 2
engine:
  cache_ttl: 3s
timers:
  tick_interval: 500ms
  presets:
    - id: tea
      seconds: 180
    - id: laundry
      seconds: 3600
      autostart: true
log:
  level: debug
  trace: /tmp/livecard.trace
templates:
  - key: visibility_kitchen
    template: "{{ is_state('light.kitchen', 'on') }}"
  - key: unified_header
    template: "{{ states('sensor.temp') }}"
    variables:
      unit: C
    scope:
      entity: sensor.temp
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_LIVECARD_TOKEN", "abc123")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://homeassistant.local:8123", cfg.Host.URL)
	assert.Equal(t, "abc123", cfg.Host.Token)
	assert.Equal(t, 5.0, cfg.Host.RateLimit)
	assert.Equal(t, 2, cfg.Host.Burst)
	assert.Equal(t, 10*time.Second, cfg.Host.HandshakeTimeout, "unset fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Engine.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Timers.TickInterval)
	assert.Equal(t, "/tmp/livecard.trace", cfg.Log.Trace)

	wantPresets := []TimerPreset{
		{ID: "tea", Seconds: 180},
		{ID: "laundry", Seconds: 3600, Autostart: true},
	}
	if diff := cmp.Diff(wantPresets, cfg.Timers.Presets); diff != "" {
		t.Errorf("presets mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, cfg.Templates, 2)
	assert.Equal(t, "unified_header", cfg.Templates[1].Key)
	assert.Equal(t, map[string]any{"unit": "C"}, cfg.Templates[1].Variables)
	assert.Equal(t, map[string]any{"entity": "sensor.temp"}, cfg.Templates[1].Scope)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livecard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host:\n  discover: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Host.Discover)
	assert.Equal(t, Default().Engine, cfg.Engine)
	assert.NoError(t, cfg.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("host: [unterminated"))
	assert.Error(t, err)

	_, err = Parse([]byte("engine:\n  cache_ttl: soon\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvToken, "from-env")
	t.Setenv(EnvURL, "http://env-host:8123")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "from-env", cfg.Host.Token)
	assert.Equal(t, "http://env-host:8123", cfg.Host.URL)

	cfg.Host.Token = "from-file"
	cfg.Host.URL = "http://file-host:8123"
	cfg.ApplyEnv()
	assert.Equal(t, "from-file", cfg.Host.Token, "file values win")
	assert.Equal(t, "http://file-host:8123", cfg.Host.URL)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Host.URL = "http://ha:8123"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no url or discover", func(c *Config) { c.Host.URL = "" }},
		{"negative rate", func(c *Config) { c.Host.RateLimit = -1 }},
		{"negative burst", func(c *Config) { c.Host.Burst = -1 }},
		{"zero cache ttl", func(c *Config) { c.Engine.CacheTTL = 0 }},
		{"zero tick", func(c *Config) { c.Timers.TickInterval = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"template without key", func(c *Config) {
			c.Templates = []TemplateSpec{{Template: "x"}}
		}},
		{"template without text", func(c *Config) {
			c.Templates = []TemplateSpec{{Key: "k"}}
		}},
		{"duplicate template", func(c *Config) {
			c.Templates = []TemplateSpec{{Key: "k", Template: "a"}, {Key: "k", Template: "b"}}
		}},
		{"preset without id", func(c *Config) {
			c.Timers.Presets = []TimerPreset{{Seconds: 3}}
		}},
		{"negative preset", func(c *Config) {
			c.Timers.Presets = []TimerPreset{{ID: "t", Seconds: -3}}
		}},
		{"duplicate preset", func(c *Config) {
			c.Timers.Presets = []TimerPreset{{ID: "t"}, {ID: "t"}}
		}},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
