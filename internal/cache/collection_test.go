package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/gatewire"
)

func TestCollectionSetGet(t *testing.T) {
	t.Parallel()

	c := NewCollection("guilds", CollectionConfig{})
	c.Set("1", "alpha")
	c.Set("2", "beta")

	v, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	v, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)

	assert.True(t, c.Has("2"))
	assert.False(t, c.Has("3"))
	assert.Equal(t, 2, c.Len())
}

func TestCollectionEviction(t *testing.T) {
	t.Parallel()

	c := NewCollection("messages", CollectionConfig{MaxSize: 3})
	for i := 1; i <= 3; i++ {
		c.Set(fmt.Sprint(i), i)
	}
	require.Equal(t, 3, c.Len())

	c.Set("4", 4)

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("1"), "oldest entry must be evicted")
	assert.Equal(t, []string{"2", "3", "4"}, c.Keys())
}

func TestCollectionOverwriteKeepsInsertion(t *testing.T) {
	t.Parallel()

	c := NewCollection("channels", CollectionConfig{MaxSize: 2})
	c.Set("a", 1)
	first, ok := c.GetEntry("a")
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	c.Set("b", 2)
	c.Set("a", 10)

	updated, ok := c.GetEntry("a")
	require.True(t, ok)
	assert.Equal(t, 10, updated.Value)
	assert.Equal(t, first.InsertedAt, updated.InsertedAt,
		"overwriting must not refresh the insertion time")
	assert.Equal(t, []string{"a", "b"}, c.Keys(),
		"overwriting must not change insertion order")

	// "a" is still the oldest entry, so it goes first at capacity
	c.Set("c", 3)
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestCollectionSweep(t *testing.T) {
	t.Parallel()

	c := NewCollection("messages", CollectionConfig{
		Filter: func(entry gatewire.CacheEntry) bool {
			return entry.Value.(int)%2 == 0
		},
	})
	for i := 1; i <= 6; i++ {
		c.Set(fmt.Sprint(i), i)
	}

	assert.Equal(t, 3, c.Sweep())
	assert.Equal(t, []string{"1", "3", "5"}, c.Keys())

	// idempotent: nothing left to remove
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, 3, c.Len())
}

func TestCollectionSweepKeepFilter(t *testing.T) {
	t.Parallel()

	c := NewCollection("members", CollectionConfig{
		Filter: func(entry gatewire.CacheEntry) bool { return true },
		KeepFilter: func(entry gatewire.CacheEntry) bool {
			return entry.Key == "pinned"
		},
	})
	c.Set("pinned", 1)
	c.Set("other", 2)

	assert.Equal(t, 1, c.Sweep())
	assert.True(t, c.Has("pinned"), "keep filter must protect matching entries")
	assert.False(t, c.Has("other"))
}

func TestCollectionSweepNoFilter(t *testing.T) {
	t.Parallel()

	c := NewCollection("users", CollectionConfig{})
	c.Set("1", 1)
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMaxAgeFilter(t *testing.T) {
	t.Parallel()

	filter := MaxAgeFilter(time.Hour)
	assert.False(t, filter(gatewire.CacheEntry{InsertedAt: time.Now()}))
	assert.True(t, filter(gatewire.CacheEntry{InsertedAt: time.Now().Add(-2 * time.Hour)}))
}

func TestCollectionForEach(t *testing.T) {
	t.Parallel()

	c := NewCollection("guilds", CollectionConfig{})
	for i := 1; i <= 4; i++ {
		c.Set(fmt.Sprint(i), i)
	}

	var visited []string
	c.ForEach(func(key string, value any) bool {
		visited = append(visited, key)
		return len(visited) < 3
	})
	assert.Equal(t, []string{"1", "2", "3"}, visited)

	// mutating inside the walk must not affect the snapshot
	visited = nil
	c.ForEach(func(key string, value any) bool {
		c.Delete(key)
		c.Set("new-"+key, 0)
		visited = append(visited, key)
		return true
	})
	assert.Equal(t, []string{"1", "2", "3", "4"}, visited)
}

func TestCollectionClearAndDelete(t *testing.T) {
	t.Parallel()

	c := NewCollection("roles", CollectionConfig{})
	c.Set("1", 1)
	c.Set("2", 2)

	assert.True(t, c.Delete("1"))
	assert.False(t, c.Delete("1"), "deleting an absent key reports false")

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
}

func TestCollectionPartial(t *testing.T) {
	t.Parallel()

	full := NewCollection("guilds", CollectionConfig{Mode: ModeFull})
	partial := NewCollection("presences", CollectionConfig{Mode: ModePartial})

	assert.False(t, full.Partial())
	assert.True(t, partial.Partial())
}
