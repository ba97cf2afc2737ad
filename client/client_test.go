package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Token = "Bot abc"
	cfg.GatewayURL = "wss://gateway.example"
	cfg.APIBaseURL = "https://api.example"
	return cfg
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig())
	assert.Error(t, err, "credentials and endpoints are required")

	_, err = New(nil)
	assert.Error(t, err, "nil falls back to an incomplete default config")
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ShardCount = 2

	c, err := New(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())

	shards := c.Shards()
	require.Len(t, shards, 2)
	assert.Equal(t, 0, shards[0].ID())
	assert.Equal(t, 1, shards[1].ID())

	// nothing connects until Connect is called
	_, ok := c.Shard(5)
	assert.False(t, ok)
}

func TestClientCollections(t *testing.T) {
	t.Parallel()

	c, err := New(testConfig())
	require.NoError(t, err)

	col := c.RegisterCollection("guilds", CollectionConfig{MaxSize: 10})
	col.Set("1", "g")

	got, ok := c.Collection("guilds")
	require.True(t, ok)
	assert.Equal(t, 1, got.Len())

	_, ok = c.Collection("absent")
	assert.False(t, ok)
}

func TestClientShardFor(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ShardCount = 4

	c, err := New(cfg)
	require.NoError(t, err)

	id := uint64(81384788765712384)
	s, ok := c.ShardFor(id)
	require.True(t, ok)
	assert.Equal(t, int((id>>22)%4), s.ID())
}
