package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps audit entries in process. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Log appends an entry.
func (s *MemoryStore) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	entry = normalize(entry)
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// ListByResource returns entries for a resource in insertion order.
func (s *MemoryStore) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Entry
	for _, entry := range s.entries {
		if entry.ResourceType != resourceType || entry.ResourceID != resourceID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
