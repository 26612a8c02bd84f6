package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  LEVEL: warn\n"), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Stream.ConnectTimeout)
	assert.Equal(t, 3, cfg.Stream.MaxRetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Stream.RetryDelay)
	assert.Equal(t, 1.0, cfg.Stream.RetryMultiplier)
	assert.Equal(t, 5*time.Minute, cfg.Tracking.SyncInterval)
	assert.Equal(t, 10, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.ShutdownGrace)
	assert.Equal(t, 10.0, cfg.API.RateLimit)
	assert.Equal(t, 5*time.Minute, cfg.API.BanDuration)
	assert.False(t, cfg.Stream.Configured())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AISBRIDGE_STREAM_URL", "wss://stream.aisstream.io/v0/stream")
	t.Setenv("AISBRIDGE_STREAM_API_KEY", "secret")
	t.Setenv("AISBRIDGE_DISPATCH_WORKERS", "4")

	cfg := loadDefaults(t)

	assert.True(t, cfg.Stream.Configured())
	assert.Equal(t, "secret", cfg.Stream.APIKey)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "http stream url",
			mutate: func(c *Config) { c.Stream.URL = "http://example.com" },
			want:   "ws:// or wss://",
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Dispatch.Workers = 0 },
			want:   "Workers",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			want:   "must be one of",
		},
		{
			name:   "max delay below base delay",
			mutate: func(c *Config) { c.Stream.MaxRetryDelay = time.Second },
			want:   "base retry delay",
		},
		{
			name:   "bad api addr",
			mutate: func(c *Config) { c.API.Addr = "nonsense" },
			want:   "host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Server: "db", Port: 5432, Name: "traccar", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/traccar?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
