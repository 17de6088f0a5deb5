package container

import (
	"fmt"
	"sort"
)

// IndexedMap pairs a hash lookup with a separately sortable position index.
// The key set of the hash table and the index are always identical; sorting
// permutes only the index and leaves the table untouched. Not safe for
// concurrent use.
type IndexedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

func NewIndexedMap[K comparable, V any]() *IndexedMap[K, V] {
	return &IndexedMap[K, V]{values: make(map[K]V)}
}

func (m *IndexedMap[K, V]) Len() int {
	return len(m.keys)
}

func (m *IndexedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Put replaces the value of an existing key in place, or appends the key at
// the end of the index.
func (m *IndexedMap[K, V]) Put(key K, value V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// PutAt inserts or replaces the entry at rank i. Replacing evicts the key
// previously held at that rank; i == Len() appends. A key already present at
// a different rank is rejected so the index and the table cannot diverge.
func (m *IndexedMap[K, V]) PutAt(i int, key K, value V) error {
	if i < 0 || i > len(m.keys) {
		return fmt.Errorf("rank %d outside [0,%d]: %w", i, len(m.keys), ErrIndexOutOfRange)
	}
	if i == len(m.keys) {
		if _, ok := m.values[key]; ok {
			return fmt.Errorf("key already present at rank %d", m.rankOf(key))
		}
		m.keys = append(m.keys, key)
		m.values[key] = value
		return nil
	}
	if m.keys[i] == key {
		m.values[key] = value
		return nil
	}
	if _, ok := m.values[key]; ok {
		return fmt.Errorf("key already present at rank %d", m.rankOf(key))
	}
	delete(m.values, m.keys[i])
	m.keys[i] = key
	m.values[key] = value
	return nil
}

// Remove deletes the key from both the table and the index.
func (m *IndexedMap[K, V]) Remove(key K) (V, bool) {
	var zero V
	v, ok := m.values[key]
	if !ok {
		return zero, false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (m *IndexedMap[K, V]) KeyAt(i int) (K, error) {
	var zero K
	if i < 0 || i >= len(m.keys) {
		return zero, fmt.Errorf("rank %d outside [0,%d): %w", i, len(m.keys), ErrIndexOutOfRange)
	}
	return m.keys[i], nil
}

func (m *IndexedMap[K, V]) ValueAt(i int) (V, error) {
	var zero V
	if i < 0 || i >= len(m.keys) {
		return zero, fmt.Errorf("rank %d outside [0,%d): %w", i, len(m.keys), ErrIndexOutOfRange)
	}
	return m.values[m.keys[i]], nil
}

func (m *IndexedMap[K, V]) SetValueAt(i int, value V) error {
	if i < 0 || i >= len(m.keys) {
		return fmt.Errorf("rank %d outside [0,%d): %w", i, len(m.keys), ErrIndexOutOfRange)
	}
	m.values[m.keys[i]] = value
	return nil
}

// SortByValue stably reorders the index by the mapped values.
func (m *IndexedMap[K, V]) SortByValue(less func(a, b V) bool) {
	sort.SliceStable(m.keys, func(i, j int) bool {
		return less(m.values[m.keys[i]], m.values[m.keys[j]])
	})
}

// SortByKey stably reorders the index by key.
func (m *IndexedMap[K, V]) SortByKey(less func(a, b K) bool) {
	sort.SliceStable(m.keys, func(i, j int) bool {
		return less(m.keys[i], m.keys[j])
	})
}

// Keys returns the index in rank order.
func (m *IndexedMap[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns the mapped values in rank order.
func (m *IndexedMap[K, V]) Values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

func (m *IndexedMap[K, V]) Clear() {
	m.keys = nil
	m.values = make(map[K]V)
}

func (m *IndexedMap[K, V]) rankOf(key K) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}
