package presence

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Expired entries stay until a newer
// entry for the same key replaces them.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Get returns the entry for key, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key], nil
}

// Put stores entry unless a stored entry is still valid at entry.CreatedAt.
func (s *MemoryStore) Put(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok && existing.ExpiresAt.After(entry.CreatedAt) {
		return nil
	}
	s.entries[key] = entry
	return nil
}

// Len reports how many keys are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
