package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"."}, cfg.WatchRoots)
	assert.True(t, cfg.LiveReload)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"zero debounce", func(c *Config) { c.Debounce = 0 }},
		{"max window below debounce", func(c *Config) { c.MaxWindow = c.Debounce / 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEffectiveAppPort(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Port+1, cfg.EffectiveAppPort())

	cfg.AppPort = 9999
	assert.Equal(t, 9999, cfg.EffectiveAppPort())
}

func TestAddrHelpers(t *testing.T) {
	cfg := Default()
	cfg.Host = "localhost"
	cfg.Port = 8000

	assert.Equal(t, "localhost:8000", cfg.Addr())
	assert.Equal(t, "localhost:8001", cfg.AppAddr())
	assert.Equal(t, "http://localhost:8000", cfg.URL())
}

func TestEffectiveLogLevel_Quiet(t *testing.T) {
	cfg := Default()
	cfg.Quiet = true
	assert.Equal(t, LogLevelError, cfg.EffectiveLogLevel())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devloop.yaml")
	content := []byte("port: 9000\ndebounce: 150ms\nwatch:\n  - app\n  - static\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 150*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"app", "static"}, cfg.WatchRoots)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DEVLOOP_PORT", "8123")
	t.Setenv("DEVLOOP_LOG_LEVEL", "debug")

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
}
