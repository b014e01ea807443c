// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sharedeck/sharedeck/pkg/retry"
)

// Config holds all sharedeck configuration.
type Config struct {
	// Storage
	DataDir  string
	CacheDir string

	// Vault (empty passphrase disables the credential vault)
	VaultPassphrase string

	// Logging
	LogLevel  string
	LogFormat string

	// Retry schedule (zero values keep the library defaults)
	RetryMaxAttempts int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// Cache budget (0 = keep everything)
	CacheMaxBytes int64

	// Connectivity probe (empty address disables probing)
	ProbeAddr     string
	ProbeInterval time.Duration

	// Metrics scrape endpoint (empty disables)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          envOr("SHAREDECK_DATA_DIR", defaultDataDir()),
		CacheDir:         envOr("SHAREDECK_CACHE_DIR", ""),
		VaultPassphrase:  envOr("SHAREDECK_VAULT_PASSPHRASE", ""),
		LogLevel:         envOr("SHAREDECK_LOG_LEVEL", "info"),
		LogFormat:        envOr("SHAREDECK_LOG_FORMAT", "console"),
		RetryMaxAttempts: envInt("SHAREDECK_RETRY_MAX_ATTEMPTS", 0),
		RetryInitialWait: envDuration("SHAREDECK_RETRY_INITIAL_WAIT", 0),
		RetryMaxWait:     envDuration("SHAREDECK_RETRY_MAX_WAIT", 0),
		CacheMaxBytes:    envInt64("SHAREDECK_CACHE_MAX_BYTES", 0),
		ProbeAddr:        envOr("SHAREDECK_PROBE_ADDR", ""),
		ProbeInterval:    envDuration("SHAREDECK_PROBE_INTERVAL", 30*time.Second),
		MetricsAddr:      envOr("SHAREDECK_METRICS_ADDR", ""),
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.CacheMaxBytes < 0 {
		return nil, fmt.Errorf("SHAREDECK_CACHE_MAX_BYTES must be >= 0")
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, fmt.Errorf("SHAREDECK_RETRY_MAX_ATTEMPTS must be >= 0")
	}

	return cfg, nil
}

// RetrySchedule converts the retry tunables into a schedule, keeping the
// library defaults for anything unset.
func (c *Config) RetrySchedule() retry.Config {
	rc := retry.DefaultConfig()
	if c.RetryMaxAttempts > 0 {
		rc.MaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryInitialWait > 0 {
		rc.InitialWait = c.RetryInitialWait
	}
	if c.RetryMaxWait > 0 {
		rc.MaxWait = c.RetryMaxWait
	}
	return rc
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharedeck"
	}
	return filepath.Join(home, ".sharedeck")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
