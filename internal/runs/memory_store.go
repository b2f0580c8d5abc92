package runs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the run audit trail in process memory. Used when no
// DATABASE_URL is configured and as the test double.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

func (s *MemoryStore) Begin(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already recorded", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) Finish(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("run %s not found", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
