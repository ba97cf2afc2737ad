// Package cache implements bounded, keyed entity collections with FIFO
// eviction, periodic predicate-driven sweeping and pluggable storage
// adapters.
package cache

import (
	"container/list"
	"sync"

	"github.com/luciancaetano/gatewire"
)

// MemoryAdapter is the default in-process storage: a map indexing into an
// insertion-ordered list, so the oldest entry is always at the front.
// Overwrites keep the entry's position.
type MemoryAdapter struct {
	mu    sync.RWMutex
	items map[string]*list.Element
	order *list.List // of gatewire.CacheEntry, oldest at front
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get returns the entry stored under key.
func (m *MemoryAdapter) Get(key string) (gatewire.CacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	element, ok := m.items[key]
	if !ok {
		return gatewire.CacheEntry{}, false
	}
	return element.Value.(gatewire.CacheEntry), true
}

// Set stores or overwrites an entry, preserving insertion order on
// overwrite.
func (m *MemoryAdapter) Set(entry gatewire.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.items[entry.Key]; ok {
		element.Value = entry
		return
	}
	m.items[entry.Key] = m.order.PushBack(entry)
}

// Delete removes the entry stored under key.
func (m *MemoryAdapter) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.items[key]
	if !ok {
		return false
	}
	m.order.Remove(element)
	delete(m.items, key)
	return true
}

// Clear removes all entries.
func (m *MemoryAdapter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
}

// Has reports whether an entry exists under key.
func (m *MemoryAdapter) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.items[key]
	return ok
}

// Len returns the number of stored entries.
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

// Keys returns all keys, oldest insertion first.
func (m *MemoryAdapter) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(gatewire.CacheEntry).Key)
	}
	return keys
}

// Values returns all stored values, oldest insertion first.
func (m *MemoryAdapter) Values() []any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]any, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		values = append(values, e.Value.(gatewire.CacheEntry).Value)
	}
	return values
}

// Entries returns all entries, oldest insertion first.
func (m *MemoryAdapter) Entries() []gatewire.CacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]gatewire.CacheEntry, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(gatewire.CacheEntry))
	}
	return entries
}
