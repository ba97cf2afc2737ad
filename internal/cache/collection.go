package cache

import (
	"sync"
	"time"

	"github.com/luciancaetano/gatewire"
)

// Mode decides what a collection stores for its entity type.
type Mode int

const (
	// ModeFull stores hydrated domain objects.
	ModeFull Mode = iota

	// ModePartial stores raw wire records; hydration, when needed, is the
	// resource layer's job. A memory/CPU trade-off made per entity type,
	// never per entry.
	ModePartial
)

// SweepFilter is a predicate over a cache entry.
type SweepFilter func(entry gatewire.CacheEntry) bool

// CollectionConfig configures one entity collection.
type CollectionConfig struct {
	// MaxSize bounds the collection; zero means unbounded.
	MaxSize int

	Mode Mode

	// Filter marks entries for removal during a sweep; KeepFilter
	// overrides it, protecting entries that would otherwise match.
	Filter     SweepFilter
	KeepFilter SweepFilter

	// Adapter is the physical storage; nil uses an in-memory adapter.
	Adapter gatewire.Adapter
}

// MaxAgeFilter returns a sweep filter matching entries older than maxAge at
// sweep time.
func MaxAgeFilter(maxAge time.Duration) SweepFilter {
	return func(entry gatewire.CacheEntry) bool {
		return time.Since(entry.InsertedAt) > maxAge
	}
}

// Collection is a bounded keyed store for one entity type. Inserting into a
// full collection evicts the oldest entry by insertion order, so size never
// exceeds MaxSize; overwriting an existing key keeps its insertion time and
// position. Reads of unknown keys return absent results, never errors.
//
// All methods are safe for concurrent use; mutations on one collection are
// atomic with respect to each other, and collections are independent.
type Collection struct {
	name string
	cfg  CollectionConfig

	mu    sync.Mutex
	store gatewire.Adapter
}

// NewCollection builds a collection with the given configuration.
func NewCollection(name string, cfg CollectionConfig) *Collection {
	store := cfg.Adapter
	if store == nil {
		store = NewMemoryAdapter()
	}
	return &Collection{name: name, cfg: cfg, store: store}
}

// Name returns the collection's entity-type name.
func (c *Collection) Name() string { return c.name }

// Partial reports whether the collection stores raw wire records.
func (c *Collection) Partial() bool { return c.cfg.Mode == ModePartial }

// Set stores value under key. A new key at capacity evicts the oldest
// entry first; an existing key is overwritten in place, keeping its
// insertion time.
func (c *Collection) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.store.Get(key); ok {
		entry.Value = value
		c.store.Set(entry)
		return
	}

	if c.cfg.MaxSize > 0 && c.store.Len() >= c.cfg.MaxSize {
		if keys := c.store.Keys(); len(keys) > 0 {
			c.store.Delete(keys[0])
		}
	}
	c.store.Set(gatewire.CacheEntry{Key: key, Value: value, InsertedAt: time.Now()})
}

// Get returns the value stored under key.
func (c *Collection) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// GetEntry returns the full entry stored under key.
func (c *Collection) GetEntry(key string) (gatewire.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// Delete removes the entry stored under key.
func (c *Collection) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete(key)
}

// Has reports whether key is present.
func (c *Collection) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Has(key)
}

// Len returns the number of stored entries.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Keys returns all keys, oldest insertion first.
func (c *Collection) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Values returns all values, oldest insertion first.
func (c *Collection) Values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Values()
}

// Entries returns all entries, oldest insertion first.
func (c *Collection) Entries() []gatewire.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Entries()
}

// Clear removes all entries.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// ForEach visits a snapshot of entries taken under the collection lock.
// Mutating the collection inside fn is safe; entries inserted mid-iteration
// are not visited. Returning false stops the walk.
func (c *Collection) ForEach(fn func(key string, value any) bool) {
	for _, entry := range c.Entries() {
		if !fn(entry.Key, entry.Value) {
			return
		}
	}
}

// Sweep removes every entry matching the configured filter unless protected
// by the keep filter, and returns the number removed. Sweeping is
// idempotent: a second pass with no intervening inserts removes nothing.
func (c *Collection) Sweep() int {
	if c.cfg.Filter == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, entry := range c.store.Entries() {
		if !c.cfg.Filter(entry) {
			continue
		}
		if c.cfg.KeepFilter != nil && c.cfg.KeepFilter(entry) {
			continue
		}
		if c.store.Delete(entry.Key) {
			removed++
		}
	}
	return removed
}
