package wind

import (
	"context"
	"sync"

	"github.com/windgrid/windgrid/internal/tilegrid"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Used by the API binary, which keeps no database, and by tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	cycles map[int64]*memoryCycle
}

type memoryCycle struct {
	keys      map[tilegrid.Key]struct{}
	summaries []Summary
}

// NewInMemoryRepository creates a new in-memory summary repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		cycles: make(map[int64]*memoryCycle),
	}
}

// SaveBatch stores summaries for a cycle, skipping tiles already present.
func (r *InMemoryRepository) SaveBatch(_ context.Context, cycle int64, summaries []Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cycles[cycle]
	if !ok {
		c = &memoryCycle{keys: make(map[tilegrid.Key]struct{})}
		r.cycles[cycle] = c
	}

	for _, s := range summaries {
		key := s.Key()
		if _, exists := c.keys[key]; exists {
			continue
		}
		c.keys[key] = struct{}{}
		c.summaries = append(c.summaries, s)
	}

	return nil
}

// ListCycle returns a copy of the summaries stored for a cycle.
func (r *InMemoryRepository) ListCycle(_ context.Context, cycle int64) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cycles[cycle]
	if !ok {
		return nil, ErrCycleNotFound
	}

	out := make([]Summary, len(c.summaries))
	copy(out, c.summaries)
	return out, nil
}

// LatestCycle returns the highest stored cycle number.
func (r *InMemoryRepository) LatestCycle(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.cycles) == 0 {
		return 0, ErrCycleNotFound
	}

	var latest int64 = -1
	for cycle := range r.cycles {
		if cycle > latest {
			latest = cycle
		}
	}
	return latest, nil
}

// DeleteBefore removes cycles older than the given one.
func (r *InMemoryRepository) DeleteBefore(_ context.Context, cycle int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.cycles {
		if c < cycle {
			delete(r.cycles, c)
		}
	}
	return nil
}
