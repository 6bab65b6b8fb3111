package reactive

import (
	"encoding/json"
	"sync"
)

// Set is an insertion-ordered set guarded by a mutex.
type Set[T comparable] struct {
	mu       sync.RWMutex
	items    map[T]struct{}
	order    []T
	onChange func()
}

// NewSet creates an empty set. onChange may be nil.
func NewSet[T comparable](onChange func()) *Set[T] {
	return &Set[T]{
		items:    make(map[T]struct{}),
		onChange: onChange,
	}
}

// Add inserts v and reports whether it was absent.
func (s *Set[T]) Add(v T) bool {
	s.mu.Lock()
	if _, ok := s.items[v]; ok {
		s.mu.Unlock()
		return false
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
	s.mu.Unlock()

	s.changed()
	return true
}

// Has reports whether v is present.
func (s *Set[T]) Has(v T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[v]
	return ok
}

// Delete removes v and reports whether it was present.
func (s *Set[T]) Delete(v T) bool {
	s.mu.Lock()
	if _, ok := s.items[v]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.items, v)
	s.order = removeOrdered(s.order, v)
	s.mu.Unlock()

	s.changed()
	return true
}

// Clear removes every value.
func (s *Set[T]) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = make(map[T]struct{})
	s.order = nil
	s.mu.Unlock()

	s.changed()
}

// Len returns the number of values.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Values returns a copy of the values in insertion order.
func (s *Set[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]T, 0, len(s.order)), s.order...)
}

// Range calls fn for each value in insertion order until fn returns false.
// fn runs on a copy, so it may mutate the set.
func (s *Set[T]) Range(fn func(v T) bool) {
	for _, v := range s.Values() {
		if !fn(v) {
			return
		}
	}
}

// ReplaceAll replaces the content with values without reporting a change.
func (s *Set[T]) ReplaceAll(values []T) {
	items := make(map[T]struct{}, len(values))
	order := make([]T, 0, len(values))
	for _, v := range values {
		if _, dup := items[v]; dup {
			continue
		}
		items[v] = struct{}{}
		order = append(order, v)
	}

	s.mu.Lock()
	s.items = items
	s.order = order
	s.mu.Unlock()
}

// MarshalJSON encodes the set as an array.
func (s *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *Set[T]) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func removeOrdered[T comparable](order []T, v T) []T {
	for i, existing := range order {
		if existing == v {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
