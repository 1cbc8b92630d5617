package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for openid-store.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevel overrides the environment's default level when set.
	LogLevel string `env:"LOG_LEVEL"`

	// How often expired authorizations and tokens are pruned.
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`

	// Records created more recently than these ages are never pruned.
	PruneAuthorizationAge time.Duration `env:"PRUNE_AUTHORIZATION_AGE" envDefault:"336h"`
	PruneTokenAge         time.Duration `env:"PRUNE_TOKEN_AGE" envDefault:"336h"`

	// StatePath is the snapshot file written on shutdown and read on
	// start. Empty disables snapshots.
	StatePath string `env:"STATE_PATH"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables it.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath != "" {
		abs, err := filepath.Abs(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
		}

		cfg.StatePath = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PruneInterval <= 0 {
		return fmt.Errorf("PRUNE_INTERVAL must be positive, got %s", c.PruneInterval)
	}

	if c.PruneAuthorizationAge <= 0 {
		return fmt.Errorf("PRUNE_AUTHORIZATION_AGE must be positive, got %s", c.PruneAuthorizationAge)
	}

	if c.PruneTokenAge <= 0 {
		return fmt.Errorf("PRUNE_TOKEN_AGE must be positive, got %s", c.PruneTokenAge)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
