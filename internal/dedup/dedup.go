package dedup

import (
	"context"
	"fmt"
	"sync"
)

// FinalizedLister is the slice of the flag store needed to rebuild the set.
type FinalizedLister interface {
	ListFinalized(ctx context.Context) ([]string, error)
}

// Set holds flag values already in a terminal state. The store stays
// authoritative; the set only saves a lookup before each submission.
type Set struct {
	mu     sync.RWMutex
	values map[string]struct{}
}

func New() *Set {
	return &Set{values: make(map[string]struct{})}
}

// Rebuild replaces the set with the finalized values from the store.
func (s *Set) Rebuild(ctx context.Context, repo FinalizedLister) error {
	values, err := repo.ListFinalized(ctx)
	if err != nil {
		return fmt.Errorf("dedup: rebuild: %w", err)
	}
	next := make(map[string]struct{}, len(values))
	for _, v := range values {
		next[v] = struct{}{}
	}

	s.mu.Lock()
	s.values = next
	s.mu.Unlock()
	return nil
}

func (s *Set) IsFinalized(value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[value]
	return ok
}

func (s *Set) MarkFinalized(value string) {
	s.mu.Lock()
	s.values[value] = struct{}{}
	s.mu.Unlock()
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
