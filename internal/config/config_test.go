package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/realtime"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MARKET_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, localcache.DefaultTTL, cfg.CacheTTL)
	assert.Equal(t, realtime.FullReload, cfg.SyncStrategy)
	assert.Equal(t, "0 0 2 * * *", cfg.MaintenanceSchedule)
	assert.Equal(t, filepath.Join(dir, "backend.db"), cfg.BackendPath())
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.CachePath())
}

func TestLoad_FromEnvironment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv("MARKET_DATA_DIR", dir)
	t.Setenv("GO_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("MARKET_BACKEND_URL", "https://market.example.com")
	t.Setenv("MARKET_USER_ID", "u1")
	t.Setenv("CACHE_TTL", "2h")
	t.Setenv("CACHE_CLEANUP_SCHEDULE", "@hourly")
	t.Setenv("SYNC_STRATEGY", "incremental_merge")

	cfg, err := Load()
	require.NoError(t, err)

	assert.DirExists(t, dir)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "https://market.example.com", cfg.BackendURL)
	assert.Equal(t, "u1", cfg.UserID)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL)
	assert.Equal(t, realtime.IncrementalMerge, cfg.SyncStrategy)
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	t.Setenv("MARKET_DATA_DIR", t.TempDir())
	t.Setenv("SYNC_STRATEGY", "poll")

	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:                 8001,
			LogLevel:             "info",
			BackendURL:           "http://localhost:8001",
			CacheTTL:             time.Hour,
			CacheCleanupSchedule: "0 0 3 * * *",
			MaintenanceSchedule:  "0 0 2 * * *",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"zero ttl means no expiry", func(c *Config) { c.CacheTTL = 0 }, true},
		{"port out of range", func(c *Config) { c.Port = 70000 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"backend url without host", func(c *Config) { c.BackendURL = "localhost" }, false},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }, false},
		{"bad schedule", func(c *Config) { c.CacheCleanupSchedule = "every day" }, false},
		{"bad maintenance schedule", func(c *Config) { c.MaintenanceSchedule = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
