package confession

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps confessions in process memory. It is the default store
// and loses everything on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Confession
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends c.
func (s *MemoryStore) Create(_ context.Context, c Confession) (Confession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, c)
	return c, nil
}

// List returns every confession, newest first.
func (s *MemoryStore) List(_ context.Context) ([]Confession, error) {
	s.mu.RLock()
	out := slices.Clone(s.items)
	s.mu.RUnlock()

	// Insertion order breaks ties between equal timestamps.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Confession) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if out == nil {
		out = []Confession{}
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
