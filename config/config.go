package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"readquest/adapters/redis"
	"readquest/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"READQUEST_ENV"`
	Profile     string      `json:"profile" env:"READQUEST_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Reward rule tables
	Rules RulesConfig `json:"rules"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics and monitoring
	Metrics MetricsConfig `json:"metrics"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Outbound webhooks and analytics export
	Integrations IntegrationsConfig `json:"integrations"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"READQUEST_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"READQUEST_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"READQUEST_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"READQUEST_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"READQUEST_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"READQUEST_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"READQUEST_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"READQUEST_SERVER_SHUTDOWN_TIMEOUT"`
	// AsyncEvents dispatches events on worker goroutines instead of inline.
	AsyncEvents bool `json:"async_events" env:"READQUEST_SERVER_ASYNC_EVENTS"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"READQUEST_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty" envPrefix:"READQUEST_REDIS_"`
	SQL     sqlx.Config  `json:"sql,omitempty" envPrefix:"READQUEST_SQL_"`
	File    FileConfig   `json:"file,omitempty"`
	// Leaderboard selects "memory" or "redis"; redis shares the storage connection settings.
	Leaderboard string `json:"leaderboard" env:"READQUEST_LEADERBOARD"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"READQUEST_STORAGE_FILE_PATH"`
}

// RulesConfig points at an external rule table. Empty means built-in tables.
type RulesConfig struct {
	Path string `json:"path" env:"READQUEST_RULES_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"READQUEST_LOG_LEVEL"`
	Format     string            `json:"format" env:"READQUEST_LOG_FORMAT"`
	Output     string            `json:"output" env:"READQUEST_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"READQUEST_LOG_ATTRIBUTES"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled             bool          `json:"enabled" env:"READQUEST_METRICS_ENABLED"`
	Address             string        `json:"address" env:"READQUEST_METRICS_ADDR"`
	Path                string        `json:"path" env:"READQUEST_METRICS_PATH"`
	AggregationInterval time.Duration `json:"aggregation_interval" env:"READQUEST_METRICS_AGGREGATION_INTERVAL"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"READQUEST_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"READQUEST_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"READQUEST_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"READQUEST_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"READQUEST_SECURITY_RATE_LIMIT_CLEANUP"`
}

// IntegrationsConfig holds outbound delivery settings.
type IntegrationsConfig struct {
	WebhookURLs   []string `json:"webhook_urls,omitempty" env:"READQUEST_WEBHOOK_URLS"`
	WebhookSecret string   `json:"webhook_secret,omitempty" env:"READQUEST_WEBHOOK_SECRET"`
	// WebhookEvents filters delivered event types. Empty delivers everything.
	WebhookEvents   []string      `json:"webhook_events,omitempty" env:"READQUEST_WEBHOOK_EVENTS"`
	WebhookTimeout  time.Duration `json:"webhook_timeout" env:"READQUEST_WEBHOOK_TIMEOUT"`
	AnalyticsURL    string        `json:"analytics_url,omitempty" env:"READQUEST_ANALYTICS_URL"`
	AnalyticsAPIKey string        `json:"analytics_api_key,omitempty" env:"READQUEST_ANALYTICS_API_KEY"`
	AnalyticsBatch  int           `json:"analytics_batch" env:"READQUEST_ANALYTICS_BATCH"`
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.CleanupInterval < 0 {
			errs = append(errs, "rate_limit.cleanup_interval cannot be negative")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			AsyncEvents:       true,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverSQLite),
			File: FileConfig{
				Path: "./data/readquest.json",
			},
			Leaderboard: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:             false,
			Address:             ":9090",
			Path:                "/metrics",
			AggregationInterval: time.Hour,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
		Integrations: IntegrationsConfig{
			WebhookTimeout: 5 * time.Second,
			AnalyticsBatch: 50,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Integrations.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("integrations config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

const redacted = "[REDACTED]"

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = redacted
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = redacted
	}
	if cfg.Integrations.WebhookSecret != "" {
		cfg.Integrations.WebhookSecret = redacted
	}
	if cfg.Integrations.AnalyticsAPIKey != "" {
		cfg.Integrations.AnalyticsAPIKey = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		keys := make([]string, len(cfg.Security.APIKeys))
		for i := range keys {
			keys[i] = redacted
		}
		cfg.Security.APIKeys = keys
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
