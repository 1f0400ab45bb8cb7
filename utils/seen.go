package utils

import "sync"

// SeenSet tracks keys already visited during one run, e.g. resort page URLs
// or listing source IDs. It is safe for concurrent use.
type SeenSet struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	order []string
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Contains returns true if the key has already been seen.
func (s *SeenSet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[key]
	return exists
}

// Size returns the number of unique keys tracked.
func (s *SeenSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Keys returns the keys in insertion order.
func (s *SeenSet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
