// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/realtime"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the databases (always absolute)
	LogLevel   string
	Port       int
	DevMode    bool
	BackendURL string // Backend API used by marketctl
	UserID     string // Signed-in user for marketctl sessions

	CacheTTL             time.Duration
	CacheCleanupSchedule string // cron spec with seconds
	MaintenanceSchedule  string // cron spec with seconds
	SyncStrategy         realtime.Strategy
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("MARKET_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	strategy, err := realtime.ParseStrategy(getEnv("SYNC_STRATEGY", string(realtime.FullReload)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:              dataDir,
		Port:                 getEnvAsInt("GO_PORT", 8001),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		BackendURL:           getEnv("MARKET_BACKEND_URL", "http://localhost:8001"),
		UserID:               getEnv("MARKET_USER_ID", ""),
		CacheTTL:             getEnvAsDuration("CACHE_TTL", localcache.DefaultTTL),
		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 3 * * *"), // Daily at 3 AM
		MaintenanceSchedule:  getEnv("DB_MAINTENANCE_SCHEDULE", "0 0 2 * * *"), // Daily at 2 AM
		SyncStrategy:         strategy,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BackendPath returns the path of the reference backend database
func (c *Config) BackendPath() string {
	return filepath.Join(c.DataDir, "backend.db")
}

// CachePath returns the path of the device-local cache database
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid MARKET_BACKEND_URL %q", c.BackendURL)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.CacheCleanupSchedule); err != nil {
		return fmt.Errorf("invalid CACHE_CLEANUP_SCHEDULE %q: %w", c.CacheCleanupSchedule, err)
	}
	if _, err := parser.Parse(c.MaintenanceSchedule); err != nil {
		return fmt.Errorf("invalid DB_MAINTENANCE_SCHEDULE %q: %w", c.MaintenanceSchedule, err)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
