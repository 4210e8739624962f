package resolver

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.m[key]
	return id, ok, nil
}

func (s *MemoryStore) Remember(_ context.Context, key, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = campaignID
	return nil
}
