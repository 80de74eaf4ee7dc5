// Package store holds robot state for the reference backend: a generic
// insertion-ordered in-memory store, and the Repository implementations
// (memory and MySQL) the HTTP handlers run against.
package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Store is a generic, thread-safe, in-memory map of T keyed by ID that
// remembers insertion order.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	order   []string
	prefix  string
	counter atomic.Uint64
}

// New creates an empty Store whose generated IDs start with prefix.
func New[T any](prefix string) *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		order:  make([]string, 0),
		prefix: prefix,
	}
}

// NextID returns the next "{prefix}_{counter}" ID (e.g. "rbt_000001") that is
// not already taken. Loaded snapshots can hold IDs in the same sequence.
func (s *Store[T]) NextID() string {
	for {
		id := fmt.Sprintf("%s_%06d", s.prefix, s.counter.Add(1))
		s.mu.RLock()
		_, taken := s.items[id]
		s.mu.RUnlock()
		if !taken {
			return id
		}
	}
}

// Set stores item under id. Overwriting keeps the original position.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// Get returns the item stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Update replaces the item under id with fn's result while holding the write
// lock. It returns false, without calling fn, when id is unknown. An error
// from fn leaves the item unchanged.
func (s *Store[T]) Update(id string, fn func(T) (T, error)) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	next, err := fn(cur)
	if err != nil {
		return cur, true, err
	}
	s.items[id] = next
	return next, true, nil
}

// Delete removes id. It reports whether the item existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.items[id])
	}
	return result
}

// Reset removes everything and restarts ID generation.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
	s.counter.Store(0)
}

// LoadSnapshot replaces all items. Order follows the sorted IDs so that
// "rbt_000002" lists after "rbt_000001".
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = v
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
}
