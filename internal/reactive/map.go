package reactive

import (
	"encoding/json"
	"sync"
)

// Map is an insertion-ordered map guarded by a mutex. Values must be
// comparable so that setting a key to its current value can be detected as a
// no-op.
type Map[K comparable, V comparable] struct {
	mu       sync.RWMutex
	items    map[K]V
	order    []K
	onChange func()
}

// NewMap creates an empty map. onChange may be nil.
func NewMap[K comparable, V comparable](onChange func()) *Map[K, V] {
	return &Map[K, V]{
		items:    make(map[K]V),
		onChange: onChange,
	}
}

// Set stores v under k and reports whether content changed.
func (m *Map[K, V]) Set(k K, v V) bool {
	m.mu.Lock()
	changed := m.setLocked(k, v)
	m.mu.Unlock()

	if changed {
		m.changed()
	}
	return changed
}

// Update replaces the value of k with fn(current, present) atomically and
// reports whether content changed.
func (m *Map[K, V]) Update(k K, fn func(current V, ok bool) V) bool {
	m.mu.Lock()
	current, ok := m.items[k]
	changed := m.setLocked(k, fn(current, ok))
	m.mu.Unlock()

	if changed {
		m.changed()
	}
	return changed
}

func (m *Map[K, V]) setLocked(k K, v V) bool {
	current, ok := m.items[k]
	if ok && current == v {
		return false
	}
	if !ok {
		m.order = append(m.order, k)
	}
	m.items[k] = v
	return true
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[k]
	return v, ok
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[k]
	return ok
}

// Delete removes k and reports whether it was present.
func (m *Map[K, V]) Delete(k K) bool {
	m.mu.Lock()
	if _, ok := m.items[k]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.items, k)
	m.order = removeOrdered(m.order, k)
	m.mu.Unlock()

	m.changed()
	return true
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	if len(m.items) == 0 {
		m.mu.Unlock()
		return
	}
	m.items = make(map[K]V)
	m.order = nil
	m.mu.Unlock()

	m.changed()
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(make([]K, 0, len(m.order)), m.order...)
}

// Entries returns a copy of the content in insertion order.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry[K, V], 0, len(m.order))
	for _, k := range m.order {
		entries = append(entries, Entry[K, V]{Key: k, Value: m.items[k]})
	}
	return entries
}

// Range calls fn for each entry in insertion order until fn returns false.
// fn runs on a copy, so it may mutate the map.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for _, e := range m.Entries() {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// ReplaceAll replaces the content with entries without reporting a change.
// A repeated key keeps its first position and its last value.
func (m *Map[K, V]) ReplaceAll(entries []Entry[K, V]) {
	items := make(map[K]V, len(entries))
	order := make([]K, 0, len(entries))
	for _, e := range entries {
		if _, dup := items[e.Key]; !dup {
			order = append(order, e.Key)
		}
		items[e.Key] = e.Value
	}

	m.mu.Lock()
	m.items = items
	m.order = order
	m.mu.Unlock()
}

// MarshalJSON encodes the map as an array of [key, value] pairs.
func (m *Map[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

func (m *Map[K, V]) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
