// Package fifo provides a capacity-bounded, insertion-ordered set.
//
// Once the set holds more than its capacity, the oldest inserted key is
// evicted. Insert, lookup, delete and eviction are O(1).
//
// Set is safe for concurrent use.
package fifo

import (
	"container/list"
	"sync"
)

// Set is a bounded set of string keys with first-in-first-out eviction.
type Set struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = oldest
	index    map[string]*list.Element
}

// New creates a set holding at most capacity keys. A non-positive capacity
// is treated as 1.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = 1
	}
	return &Set{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity+1),
	}
}

// Add inserts key. Re-adding a present key does not change its position.
// It reports whether an older key was evicted to make room.
func (s *Set) Add(key string) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = s.order.PushBack(key)

	if s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
		return true
	}
	return false
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// Delete removes key if present.
func (s *Set) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[key]; ok {
		s.order.Remove(el)
		delete(s.index, key)
	}
}

// Clear removes every key.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	clear(s.index)
}

// Len returns the number of keys held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
