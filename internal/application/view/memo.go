package view

import (
	"sync"
)

// memo is a small bounded cache of derived results. Keys include the snapshot
// version, so entries of replaced snapshots simply age out.
type memo[K comparable, V any] struct {
	mu      sync.Mutex
	limit   int
	entries map[K]V
	order   []K
}

func newMemo[K comparable, V any](limit int) *memo[K, V] {
	if limit <= 0 {
		limit = 32
	}
	return &memo[K, V]{limit: limit, entries: make(map[K]V, limit)}
}

func (m *memo[K, V]) get(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[k]
	return v, ok
}

func (m *memo[K, V]) put(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; !ok {
		m.order = append(m.order, k)
	}
	m.entries[k] = v
	for len(m.order) > m.limit {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *memo[K, V]) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
