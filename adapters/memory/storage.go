package memory

import (
	"context"
	"slices"
	"sync"

	"readquest/core"
)

// Store is a concurrent in-memory Storage implementation.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu      sync.Mutex
	profile core.Profile
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{profile: core.NewProfile(user)}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

func (s *Store) GetProfile(_ context.Context, user core.UserID) (core.Profile, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.profile.Clone(), nil
}

func (s *Store) SaveProfile(_ context.Context, p core.Profile) error {
	rec := s.getOrCreate(p.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.profile.Version != p.Version {
		return core.ErrVersionConflict
	}
	next := p.Clone()
	next.Version = p.Version + 1
	rec.profile = next
	return nil
}

// Users returns every user with a saved profile in sorted order. Users that
// were only read are skipped.
func (s *Store) Users(_ context.Context) ([]core.UserID, error) {
	var out []core.UserID
	s.users.Range(func(k, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		saved := rec.profile.Version > 0
		rec.mu.Unlock()
		if saved {
			out = append(out, k.(core.UserID))
		}
		return true
	})
	slices.Sort(out)
	return out, nil
}

var _ interface {
	GetProfile(context.Context, core.UserID) (core.Profile, error)
	SaveProfile(context.Context, core.Profile) error
	Users(context.Context) ([]core.UserID, error)
} = (*Store)(nil)
