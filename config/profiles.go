package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the preset for a deployment environment with the
// environment overlay applied. Known names: development, testing, staging,
// production.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Server.AsyncEvents = false
		cfg.Logging.Level = "warn"
		cfg.Logging.Format = "text"
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "sql"
		cfg.Storage.SQL.DSN = "file:./data/readquest.db"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Server.ShutdownTimeout = 60 * time.Second
		cfg.Storage.Adapter = "redis"
		cfg.Storage.Leaderboard = "redis"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 120
		cfg.Security.RateLimit.BurstSize = 20
	default:
		return nil, fmt.Errorf("unknown config profile %q", name)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for profile %s: %w", name, err)
	}
	return cfg, nil
}
