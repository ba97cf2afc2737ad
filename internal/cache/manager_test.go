package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/gatewire"
)

func TestManagerRegisterIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})

	first := m.Register("guilds", CollectionConfig{MaxSize: 10})
	second := m.Register("guilds", CollectionConfig{MaxSize: 99})

	assert.Same(t, first, second, "re-registering must return the existing collection")

	first.Set("1", 1)
	got, ok := m.Collection("guilds")
	require.True(t, ok)
	assert.Equal(t, 1, got.Len())

	_, ok = m.Collection("unknown")
	assert.False(t, ok)
}

func TestManagerSweepAll(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	all := func(gatewire.CacheEntry) bool { return true }

	a := m.Register("a", CollectionConfig{Filter: all})
	b := m.Register("b", CollectionConfig{Filter: all})
	m.Register("c", CollectionConfig{}) // no filter, never swept

	a.Set("1", 1)
	a.Set("2", 2)
	b.Set("1", 1)
	c, _ := m.Collection("c")
	c.Set("1", 1)

	assert.Equal(t, 3, m.SweepAll())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, c.Len())
}

func TestManagerBackgroundSweeper(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{SweepInterval: 20 * time.Millisecond})
	c := m.Register("messages", CollectionConfig{
		Filter: func(gatewire.CacheEntry) bool { return true },
	})
	c.Set("1", 1)

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 5*time.Millisecond, "sweeper must drain the collection")
}

func TestManagerStartStop(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{SweepInterval: time.Millisecond})
	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op
	m.Stop()
	m.Stop() // second stop is a no-op

	// zero interval disables the sweeper entirely
	disabled := NewManager(ManagerConfig{})
	disabled.Start(context.Background())
	disabled.Stop()
}
