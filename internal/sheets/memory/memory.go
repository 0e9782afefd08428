package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kbju/internal/core"
	ports "kbju/internal/sheets"
)

var _ ports.Journal = (*Store)(nil)

// Store is an in-memory journal used in development and tests.
type Store struct {
	mu    sync.Mutex
	items []core.ConsumptionEntry
	seen  map[int64]struct{}
}

func New() *Store {
	return &Store{seen: make(map[int64]struct{})}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, e core.ConsumptionEntry) (string, error) {
	if e.ID <= 0 {
		return "", errors.New("entry id must be positive")
	}
	if err := core.ValidateGrams(e.Grams); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	s.seen[e.ID] = struct{}{}
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) HasEntry(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok, nil
}

// Entries returns a copy of the journaled rows in append order.
func (s *Store) Entries() []core.ConsumptionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ConsumptionEntry(nil), s.items...)
}
