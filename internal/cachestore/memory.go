package cachestore

import (
	"context"
	"sync"

	"github.com/tbourn/go-insight-backend/internal/insight"
)

// MemoryStore is the single-process fallback used when no Redis
// address is configured. Entries are kept in their serialized form so
// both backends share one codec.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, deviceID string) (insight.LocalInsightCache, error) {
	s.mu.RLock()
	raw, ok := s.entries[deviceID]
	s.mu.RUnlock()
	if !ok {
		return insight.LocalInsightCache{}, ErrNotFound
	}
	return decodeCache(raw)
}

func (s *MemoryStore) Put(_ context.Context, deviceID string, c insight.LocalInsightCache) error {
	raw, err := encodeCache(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[deviceID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
