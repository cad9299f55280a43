package memory

import (
	"context"
	"errors"
	"testing"

	"readquest/core"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	p, err := s.GetProfile(ctx, core.UserID("u"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != 0 || p.Stats.Level != 1 {
		t.Fatalf("unexpected fresh profile: %+v", p)
	}

	p.Books["b1"] = core.Book{ID: "b1", Title: "Meditations", Category: core.CategoryPhilosophy}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetProfile(ctx, core.UserID("u"))
	if got.Version != 1 {
		t.Fatalf("want version 1 got %d", got.Version)
	}
	if _, ok := got.Books["b1"]; !ok {
		t.Fatal("book missing")
	}

	// stale write
	if err := s.SaveProfile(ctx, p); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("want version conflict, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, _ := s.GetProfile(ctx, "u")
	p.Stats.Attributes[core.AttrLogic] = 7
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Stats.Attributes[core.AttrLogic] = 99

	got, _ := s.GetProfile(ctx, "u")
	if got.Stats.Attributes[core.AttrLogic] != 7 {
		t.Fatalf("stored profile shares memory with caller: %d", got.Stats.Attributes[core.AttrLogic])
	}
	_, _ = s.GetProfile(ctx, "reader-only")
	if users, _ := s.Users(ctx); len(users) != 1 || users[0] != "u" {
		t.Fatalf("want only the saved user, got %v", users)
	}
}
