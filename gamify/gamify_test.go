package gamify

import (
	"context"
	"testing"
	"time"

	mem "readquest/adapters/memory"
	"readquest/analytics"
	"readquest/core"
	"readquest/engine"
	"readquest/leaderboard"
	"readquest/realtime"
	"readquest/rules"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	_, ch := hub.Subscribe(8)
	svc := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
	)
	defer svc.Close()

	added, err := svc.AddBook(context.Background(), "alice", engine.NewBook{Title: "Dune", Category: core.CategoryLiterature, IsNew: true})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	if added.Reward.Points != 12 {
		t.Fatalf("expected 12 entry points, got %d", added.Reward.Points)
	}

	// realtime bridge should receive event
	ev := <-ch
	if ev.UserID != "alice" || ev.Type != core.EventBookAdded {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestInMemoryFallback(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()

	added, err := svc.AddBook(context.Background(), "bob", engine.NewBook{Title: "Ethics", Category: core.CategoryPhilosophy})
	if err != nil {
		t.Fatalf("fallback add book: %v", err)
	}
	if _, err := svc.UpdateProgress(context.Background(), "bob", added.Book.ID, 100); err != nil {
		t.Fatalf("fallback progress: %v", err)
	}
	p, err := svc.GetProfile(context.Background(), "bob")
	if err != nil {
		t.Fatalf("fallback get profile: %v", err)
	}
	if p.CompletedCount != 1 {
		t.Fatalf("expected 1 finished book, got %d", p.CompletedCount)
	}
	top := svc.Leaderboard(1)
	if len(top) != 1 || top[0].User != "bob" {
		t.Fatalf("default leaderboard not wired: %+v", top)
	}
}

func TestHooksAndClock(t *testing.T) {
	day := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	metrics := analytics.NewReadingMetrics()
	dau := analytics.NewDAU()
	board := leaderboard.NewSkipList()
	svc := New(
		WithDispatchMode(engine.DispatchSync),
		WithHooks(metrics, dau),
		WithLeaderboard(board),
		WithClock(func() time.Time { return day }),
	)
	defer svc.Close()

	added, err := svc.AddBook(context.Background(), "carol", engine.NewBook{Title: "Histories", Category: core.CategoryHistory})
	if err != nil {
		t.Fatal(err)
	}
	if !added.Book.AddedAt.Equal(day) {
		t.Fatalf("clock not applied: %v", added.Book.AddedAt)
	}
	today := day.Format(time.DateOnly)
	if got := metrics.GetBooksAddedByDay(today); got != 1 {
		t.Fatalf("expected 1 book added in metrics, got %d", got)
	}
	if dau.Count(today) != 1 {
		t.Fatalf("expected 1 active reader, got %d", dau.Count(today))
	}
}

func TestWithRules(t *testing.T) {
	tables := rules.Default()
	tables.Version = "custom"
	svc := New(WithRules(tables), WithDispatchMode(engine.DispatchSync))
	defer svc.Close()
	if svc.Rules().Version != "custom" {
		t.Fatalf("custom rules not applied: %q", svc.Rules().Version)
	}
}
