package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"readquest/core"
)

// Store persists every profile to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.Profile
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.Profile{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.Profile
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		v.Normalize()
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.Profile, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) GetProfile(_ context.Context, user core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.data[user]; ok {
		return p.Clone(), nil
	}
	return core.NewProfile(user), nil
}

func (s *Store) SaveProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[p.UserID]
	if current.Version != p.Version {
		return core.ErrVersionConflict
	}
	next := p.Clone()
	next.Version = p.Version + 1
	s.data[p.UserID] = next
	if err := s.persist(); err != nil {
		if ok {
			s.data[p.UserID] = current
		} else {
			delete(s.data, p.UserID)
		}
		return err
	}
	return nil
}

// Users lists stored users in sorted order.
func (s *Store) Users(_ context.Context) ([]core.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserID, 0, len(s.data))
	for u := range s.data {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
