// Package gamify assembles a ready-to-use reading progression service.
package gamify

import (
	"context"
	"log/slog"
	"time"

	mem "readquest/adapters/memory"
	"readquest/analytics"
	"readquest/core"
	"readquest/engine"
	"readquest/leaderboard"
	"readquest/progression"
	"readquest/realtime"
	"readquest/rules"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	tables  *rules.Tables
	hub     *realtime.Hub
	logger  *slog.Logger
	board   leaderboard.Board
	now     func() time.Time
	hooks   []analytics.Hook
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithRules replaces the built-in reward tables.
func WithRules(t rules.Tables) Option { return func(c *config) { c.tables = &t } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLogger sets the structured logger used by the bus and service.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithLeaderboard ranks readers by finished books.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// WithHooks forwards every event to the given analytics hooks.
func WithHooks(hooks ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

// New builds a configured Service. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: built-in tables
//   - dispatch: async
//   - leaderboard: in-process skip list
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.board == nil {
		cfg.board = leaderboard.NewSkipList()
	}
	eng := progression.Default()
	if cfg.tables != nil {
		eng = progression.New(*cfg.tables)
	}

	bus := engine.NewEventBus(cfg.mode)
	bus.SetLogger(cfg.logger)

	svcOpts := []engine.ServiceOption{engine.WithLogger(cfg.logger), engine.WithBoard(cfg.board)}
	if cfg.now != nil {
		svcOpts = append(svcOpts, engine.WithClock(cfg.now))
	}
	svc := engine.NewService(cfg.storage, bus, eng, svcOpts...)

	if cfg.hub != nil {
		bus.SubscribeAll(func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
	}
	if len(cfg.hooks) > 0 {
		bridge := analytics.NewBridge(cfg.hooks...)
		bus.SubscribeAll(func(_ context.Context, e core.Event) { bridge.OnEvent(e) })
	}
	return svc
}
