package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"readquest/adapters/jsonfile"
	mem "readquest/adapters/memory"
	redisAdapter "readquest/adapters/redis"
	sqlxAdapter "readquest/adapters/sqlx"
	"readquest/analytics"
	"readquest/api/httpapi"
	"readquest/config"
	"readquest/core"
	"readquest/engine"
	"readquest/gamify"
	"readquest/integrations/webhook"
	"readquest/leaderboard"
	"readquest/realtime"
	"readquest/rules"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Hub        *realtime.Hub
	Service    *engine.Service
	Aggregator *analytics.AggregationEngine
	Handler    http.Handler
	Server     *http.Server
}

// configFileEnv names a JSON config file to load instead of the defaults.
const configFileEnv = "READQUEST_CONFIG_FILE"

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case os.Getenv(configFileEnv) != "":
		cfg, err = config.LoadFromFile(os.Getenv(configFileEnv))
	case os.Getenv("READQUEST_PROFILE") != "":
		cfg, err = config.LoadProfile(os.Getenv("READQUEST_PROFILE"))
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		cfg.LoadSecretsFromEnv(ctx)
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideRules(cfg *config.Config, logger *slog.Logger) (rules.Tables, error) {
	tables, err := rules.LoadOrDefault(cfg.Rules.Path)
	if err != nil {
		return rules.Tables{}, fmt.Errorf("load rules: %w", err)
	}
	logger.Info("rule tables loaded", "version", tables.Version, "skills", len(tables.Skills), "achievements", len(tables.Achievements))
	return tables, nil
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, func(), error) {
	return setupStorage(ctx, cfg)
}

func provideBoard(cfg *config.Config, storage engine.Storage, logger *slog.Logger) (leaderboard.Board, func()) {
	if cfg.Storage.Leaderboard != "redis" {
		return leaderboard.NewSkipList(), func() {}
	}
	if rs, ok := storage.(*redisAdapter.Store); ok {
		return redisAdapter.NewBoard(rs.Client(), cfg.Storage.Redis.KeyPrefix, logger), func() {}
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	return redisAdapter.NewBoard(client, cfg.Storage.Redis.KeyPrefix, logger), func() { _ = client.Close() }
}

func provideMetrics() *analytics.ReadingMetrics {
	return analytics.NewReadingMetrics()
}

func provideAggregator(cfg *config.Config, metrics *analytics.ReadingMetrics, logger *slog.Logger) (*analytics.AggregationEngine, func()) {
	exporters := []analytics.Exporter{analytics.NewLogExporter(logger)}
	if cfg.Integrations.AnalyticsURL != "" {
		exporters = append(exporters, analytics.NewHTTPExporter(
			cfg.Integrations.AnalyticsURL,
			cfg.Integrations.AnalyticsAPIKey,
			cfg.Integrations.AnalyticsBatch,
		))
	}
	exporter := analytics.NewMultiExporter(exporters...)
	agg := analytics.NewAggregationEngine(metrics, cfg.Metrics.AggregationInterval).
		WithExporter(exporter).
		WithLogger(logger)
	return agg, func() {
		if err := exporter.Close(); err != nil {
			logger.Warn("analytics exporter close failed", "error", err)
		}
	}
}

func provideWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Integrations.WebhookURLs) == 0 {
		return nil
	}
	types := make([]core.EventType, 0, len(cfg.Integrations.WebhookEvents))
	for _, t := range cfg.Integrations.WebhookEvents {
		types = append(types, core.EventType(t))
	}
	return webhook.New(cfg.Integrations.WebhookURLs,
		webhook.WithClient(&http.Client{Timeout: cfg.Integrations.WebhookTimeout}),
		webhook.WithSecret(cfg.Integrations.WebhookSecret),
		webhook.WithEventTypes(types...),
		webhook.WithLogger(logger),
	)
}

func provideService(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	hub *realtime.Hub,
	storage engine.Storage,
	board leaderboard.Board,
	tables rules.Tables,
	agg *analytics.AggregationEngine,
	sink *webhook.Sink,
) (*engine.Service, func(), error) {
	mode := engine.DispatchSync
	if cfg.Server.AsyncEvents {
		mode = engine.DispatchAsync
	}
	hooks := []analytics.Hook{agg}
	if sink != nil {
		hooks = append(hooks, sink)
	}
	svc := gamify.New(
		gamify.WithRealtime(hub),
		gamify.WithStorage(storage),
		gamify.WithRules(tables),
		gamify.WithDispatchMode(mode),
		gamify.WithLogger(logger),
		gamify.WithLeaderboard(board),
		gamify.WithHooks(hooks...),
	)
	// the skip list starts empty on every boot
	if _, err := svc.RebuildBoard(ctx); err != nil {
		svc.Close()
		return nil, nil, fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return svc, svc.Close, nil
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RateLimitCleanup: cfg.Security.RateLimit.CleanupInterval,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), noop, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		s, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "sql":
		s, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
