package engine

import (
	"context"

	"readquest/core"
)

// Storage persists reader profiles with optimistic concurrency.
//
// GetProfile returns a deep copy of the stored profile, or core.NewProfile
// with Version 0 when the user has none yet.
//
// SaveProfile stores p only if the stored version still equals p.Version and
// then advances the stored version by one. A mismatch yields
// core.ErrVersionConflict and leaves the stored profile untouched.
type Storage interface {
	GetProfile(ctx context.Context, user core.UserID) (core.Profile, error)
	SaveProfile(ctx context.Context, p core.Profile) error
}

// UserLister is implemented by storage that can enumerate saved profiles.
// Every bundled adapter implements it.
type UserLister interface {
	Users(ctx context.Context) ([]core.UserID, error)
}
