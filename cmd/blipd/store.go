package main

import "sync"

// memoryStore is a minimal in-process DataAccessor for standalone runs.
// Real embedders supply their own accessor backed by application state.
type memoryStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]any)}
}

func (s *memoryStore) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *memoryStore) Set(name string, value any) bool {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
	return true
}
