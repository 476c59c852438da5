package pemstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps artifacts in a map, used for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// Write stores content under path, replacing any previous value.
func (s *MemoryStore) Write(_ context.Context, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[path] = content
	return nil
}

// Read returns the content stored under path, or ErrNotFound.
func (s *MemoryStore) Read(_ context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.items[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return content, nil
}

// Paths returns the stored paths in sorted order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.items))
	for p := range s.items {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
