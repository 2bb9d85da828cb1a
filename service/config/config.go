package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Logging
	LogLevel string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// KnownTokenMints lists extra recognized tokens beyond the built-in
	// registry, as "mint:symbol:decimals" entries.
	KnownTokenMints []string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Sync scheduling
	DefaultSyncInterval time.Duration
	MinSyncInterval     time.Duration

	// MetricsAddr is where the worker exposes its Prometheus endpoint.
	MetricsAddr string
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	if raw := os.Getenv("KNOWN_TOKEN_MINTS"); raw != "" {
		cfg.KnownTokenMints = strings.Split(raw, ",")
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solsync-account-sync")

	defaultInterval, err := parseDuration("DEFAULT_SYNC_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultSyncInterval = defaultInterval
	}

	minInterval, err := parseDuration("MIN_SYNC_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinSyncInterval = minInterval
	}

	if cfg.MinSyncInterval > cfg.DefaultSyncInterval {
		errs = append(errs, fmt.Errorf("MIN_SYNC_INTERVAL (%v) cannot be greater than DEFAULT_SYNC_INTERVAL (%v)",
			cfg.MinSyncInterval, cfg.DefaultSyncInterval))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for worker initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	for _, entry := range c.KnownTokenMints {
		if len(strings.Split(entry, ":")) != 3 {
			errs = append(errs, fmt.Errorf("KnownTokenMints entry %q must be mint:symbol:decimals", entry))
		}
	}

	if c.MinSyncInterval > c.DefaultSyncInterval {
		errs = append(errs, fmt.Errorf("MinSyncInterval cannot be greater than DefaultSyncInterval"))
	}

	if c.DefaultSyncInterval < time.Second {
		errs = append(errs, fmt.Errorf("DefaultSyncInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
