package history

import (
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	attempts []Attempt // oldest first
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Record implements [Store.Record].
func (s *MemStore) Record(_ context.Context, a Attempt) error {
	a, err := Prepare(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, q Query) ([]Attempt, error) {
	s.mu.RLock()
	newest := slices.Clone(s.attempts)
	s.mu.RUnlock()
	slices.Reverse(newest)
	return Filter(newest, q), nil
}

// Ping implements [Store.Ping].
func (s *MemStore) Ping(context.Context) error { return nil }

// Close implements [Store.Close].
func (s *MemStore) Close() error { return nil }
