// Package syncutil provides sharded synchronization primitives.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const numShards = 256

// ShardedMap is a string-keyed byte-slice map split across a fixed pool of
// lock-guarded shards. Unlike a single RWMutex-guarded map, writers to
// different keys rarely contend; unlike sync.Map, reads of hot keys take no
// allocation. Memory for the lock pool is bounded regardless of how many
// keys are stored, at the cost of occasional false sharing between keys
// that hash to the same shard.
type ShardedMap struct {
	shards [numShards]mapShard
}

type mapShard struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewShardedMap creates an empty ShardedMap.
func NewShardedMap() *ShardedMap {
	sm := &ShardedMap{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string][]byte)
	}
	return sm
}

// Set stores value under key, replacing any previous value.
func (sm *ShardedMap) Set(key string, value []byte) {
	s := sm.shard(key)
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// Get returns the value stored under key, or ok=false if absent.
func (sm *ShardedMap) Get(key string) ([]byte, bool) {
	s := sm.shard(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Len returns the total number of stored keys.
func (sm *ShardedMap) Len() int {
	n := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

func (sm *ShardedMap) shard(key string) *mapShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &sm.shards[h.Sum32()%numShards]
}
