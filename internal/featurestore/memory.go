package featurestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avolkov/featurepipe/internal/syncutil"
)

// MemoryStore is an in-process Client. It backs the dev store server and
// serves as the test double for the pipeline. Values are kept JSON-encoded
// so the memory backend round-trips exactly what the wire formats would.
type MemoryStore struct {
	records *syncutil.ShardedMap
}

// NewMemoryStore creates an empty in-memory feature store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: syncutil.NewShardedMap()}
}

// Put upserts the feature list under key. Last writer wins.
func (s *MemoryStore) Put(ctx context.Context, key string, features []Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	s.records.Set(key, data)
	return nil
}

// Get returns the feature list stored under key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := s.records.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	var features []Feature
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return features, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	return s.records.Len()
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
