package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readquest/adapters/jsonfile"
	mem "readquest/adapters/memory"
	redisAdapter "readquest/adapters/redis"
	sqlxAdapter "readquest/adapters/sqlx"
	"readquest/config"
	"readquest/engine"
	"readquest/leaderboard"
)

func TestSetupStorage(t *testing.T) {
	cfg := config.DefaultConfig()

	s, cleanup, err := setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &mem.Store{}, s)

	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "profiles.json")
	s, cleanup, err = setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &jsonfile.Store{}, s)

	cfg.Storage.Adapter = "sql"
	cfg.Storage.SQL.DSN = filepath.Join(t.TempDir(), "readquest.db")
	s, cleanup, err = setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &sqlxAdapter.Store{}, s)

	cfg.Storage.Adapter = "tape"
	_, _, err = setupStorage(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown storage adapter")
}

func TestProvideBoard(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := slog.Default()

	board, cleanup := provideBoard(cfg, mem.New(), logger)
	cleanup()
	assert.IsType(t, &leaderboard.SkipList{}, board)

	mr := miniredis.RunT(t)
	cfg.Storage.Leaderboard = "redis"
	cfg.Storage.Redis.Addr = mr.Addr()
	board, cleanup = provideBoard(cfg, mem.New(), logger)
	defer cleanup()
	require.IsType(t, &redisAdapter.Board{}, board)
	board.Update("alice", 2)
	assert.Equal(t, 1, board.Len())
	assert.True(t, mr.Exists("readquest:leaderboard"))
}

func TestServiceAndHandlerWiring(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.AsyncEvents = false
	logger := slog.Default()

	tables, err := provideRules(cfg, logger)
	require.NoError(t, err)
	storage, cleanup, err := provideStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	board, cleanupBoard := provideBoard(cfg, storage, logger)
	defer cleanupBoard()
	metrics := provideMetrics()
	agg, cleanupAgg := provideAggregator(cfg, metrics, logger)
	defer cleanupAgg()
	hub := provideHub()

	assert.Nil(t, provideWebhook(cfg, logger))

	svc, closeSvc, err := provideService(context.Background(), cfg, logger, hub, storage, board, tables, agg, nil)
	require.NoError(t, err)
	defer closeSvc()

	srv := httptest.NewServer(provideHandler(svc, hub, cfg, logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = svc.AddBook(context.Background(), "reader", engine.NewBook{Title: "Walden"})
	require.NoError(t, err)
	total, _, _ := metrics.GetRealtimeStats()
	assert.Positive(t, total)
}

func TestProvideServiceRestoresLeaderboardOnBoot(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Server.AsyncEvents = false
	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "profiles.json")
	logger := slog.Default()
	tables, err := provideRules(cfg, logger)
	require.NoError(t, err)

	boot := func() (*engine.Service, func()) {
		storage, cleanup, err := provideStorage(ctx, cfg)
		require.NoError(t, err)
		board, cleanupBoard := provideBoard(cfg, storage, logger)
		agg, cleanupAgg := provideAggregator(cfg, provideMetrics(), logger)
		svc, closeSvc, err := provideService(ctx, cfg, logger, provideHub(), storage, board, tables, agg, nil)
		require.NoError(t, err)
		return svc, func() { closeSvc(); cleanupAgg(); cleanupBoard(); cleanup() }
	}

	svc, shutdown := boot()
	added, err := svc.AddBook(ctx, "alice", engine.NewBook{Title: "Walden"})
	require.NoError(t, err)
	_, err = svc.UpdateProgress(ctx, "alice", added.Book.ID, 100)
	require.NoError(t, err)
	shutdown()

	svc, shutdown = boot()
	defer shutdown()
	assert.Equal(t, []leaderboard.Entry{{User: "alice", Score: 1, Rank: 1}}, svc.Leaderboard(10))
}

func TestProvideRulesBadPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rules.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := provideRules(cfg, slog.Default())
	assert.ErrorContains(t, err, "load rules")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}
