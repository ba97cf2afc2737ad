package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/gatewire"
	"github.com/luciancaetano/gatewire/internal/protocol"
)

func TestShardID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entityID uint64
		total    int
		want     int
	}{
		{"single shard", 81384788765712384, 1, 0},
		{"two shards", 81384788765712384, 2, (81384788765712384 >> 22) % 2},
		{"sixteen shards", 197038439483310080, 16, (197038439483310080 >> 22) % 16},
		{"zero entity", 0, 4, 0},
		{"invalid total", 123, 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShardID(tt.entityID, tt.total))
		})
	}
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(ManagerConfig{GatewayURL: "wss://example"})
	assert.Error(t, err, "missing token")

	_, err = NewManager(ManagerConfig{Token: "t"})
	assert.Error(t, err, "missing gateway url")

	_, err = NewManager(ManagerConfig{
		Token:      "t",
		GatewayURL: "wss://example",
		ShardCount: 2,
		ShardIDs:   []int{0, 2},
	})
	assert.ErrorIs(t, err, gatewire.ErrInvalidShardCount)
}

func TestManagerShards(t *testing.T) {
	t.Parallel()

	m, err := NewManager(ManagerConfig{
		Token:      "t",
		GatewayURL: "wss://example",
		ShardCount: 3,
	})
	require.NoError(t, err)

	shards := m.Shards()
	require.Len(t, shards, 3)
	for i, s := range shards {
		assert.Equal(t, i, s.ID())
		assert.Equal(t, gatewire.StatusIdle, s.Status())
	}

	s, ok := m.Shard(1)
	require.True(t, ok)
	assert.Equal(t, 1, s.ID())

	_, ok = m.Shard(9)
	assert.False(t, ok)
}

func TestManagerShardSubset(t *testing.T) {
	t.Parallel()

	m, err := NewManager(ManagerConfig{
		Token:      "t",
		GatewayURL: "wss://example",
		ShardCount: 4,
		ShardIDs:   []int{1, 3},
	})
	require.NoError(t, err)

	shards := m.Shards()
	require.Len(t, shards, 2)
	assert.Equal(t, 1, shards[0].ID())
	assert.Equal(t, 3, shards[1].ID())
}

func TestManagerReshardClosed(t *testing.T) {
	t.Parallel()

	m, err := NewManager(ManagerConfig{
		Token:      "t",
		GatewayURL: "wss://example",
		ShardCount: 2,
		ShardIDs:   []int{0},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Reshard(context.Background(), 0), gatewire.ErrInvalidShardCount)

	// a closed manager reshards without connecting
	require.NoError(t, m.Reshard(context.Background(), 4))
	assert.Len(t, m.Shards(), 4)
}

func TestManagerOpenClose(t *testing.T) {
	t.Parallel()

	g := newGatewayServer(t)
	m, err := NewManager(ManagerConfig{
		Token:           "test-token",
		GatewayURL:      g.url(),
		ShardCount:      2,
		MaxConcurrency:  1,
		IdentifySpacing: time.Millisecond,
	})
	require.NoError(t, err)

	sub := m.SubscribeLifecycle(64)
	defer sub.Cancel()

	openErr := make(chan error, 1)
	go func() { openErr <- m.Open(context.Background()) }()

	// both shards dial concurrently; the shared pacer serializes their
	// identify handshakes
	for i := 0; i < 2; i++ {
		conn := g.accept()
		conn.hello(60000)
		frame := conn.expect(protocol.OpIdentify, true)

		var identify protocol.Identify
		require.NoError(t, json.Unmarshal(frame.Data, &identify))
		assert.Equal(t, 2, identify.Shard[1])
		conn.dispatch(gatewire.EventReady, 1, protocol.Ready{
			SessionID: "sess",
			Shard:     identify.Shard,
		})
	}
	require.NoError(t, <-openErr)

	ready := 0
	deadline := time.After(3 * time.Second)
	for ready < 2 {
		select {
		case ev := <-sub.C():
			if ev.Status == gatewire.StatusReady {
				ready++
			}
		case <-deadline:
			t.Fatal("timed out waiting for both shards to become ready")
		}
	}

	assert.ErrorIs(t, m.Open(context.Background()), gatewire.ErrAlreadyOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
	for _, s := range m.Shards() {
		assert.Equal(t, gatewire.StatusDisconnected, s.Status())
	}
}
