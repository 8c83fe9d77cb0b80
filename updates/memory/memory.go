// Package memory provides an in-memory implementation of updates.Store.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/inspector-proxy-go/updates"
)

// Store implements updates.Store with a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	updates map[string]updates.Update
}

var _ updates.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{updates: make(map[string]updates.Update)}
}

// List returns all updates ordered by id.
func (s *Store) List(ctx context.Context) ([]updates.Update, error) {
	s.mu.RLock()
	out := make([]updates.Update, 0, len(s.updates))
	for _, u := range s.updates {
		out = append(out, u)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b updates.Update) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*updates.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.updates[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) Put(ctx context.Context, u updates.Update) error {
	if u.ID == "" {
		return updates.ErrInvalidID
	}
	s.mu.Lock()
	s.updates[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *Store) MarkAccessed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.updates[id]
	if !ok {
		return updates.ErrNotFound
	}
	u.LastAccessed = at
	s.updates[id] = u
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.updates[id]; !ok {
		return updates.ErrNotFound
	}
	delete(s.updates, id)
	return nil
}

// Close drops all updates.
func (s *Store) Close() error {
	s.mu.Lock()
	clear(s.updates)
	s.mu.Unlock()
	return nil
}
