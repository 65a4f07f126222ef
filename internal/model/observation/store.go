package observation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Repository with an in-memory slice, suitable for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Observation
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied observations.
func NewMemoryStore(items ...Observation) *MemoryStore {
	return &MemoryStore{items: append([]Observation(nil), items...)}
}

// Insert validates and appends a record, assigning an id and submission time when missing.
func (s *MemoryStore) Insert(ctx context.Context, o Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.items = append(s.items, o)
	s.mu.Unlock()
	return nil
}

// SelectAll returns every stored observation in insertion order.
func (s *MemoryStore) SelectAll(ctx context.Context) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Observation(nil), s.items...), nil
}

// Len returns the number of stored observations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
