// Package client wires the gateway shard manager, the rate-limited request
// dispatcher and the entity cache into one client instance. All mutable
// state lives on the instance, so multiple independent clients can coexist
// in one process.
package client

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/gatewire"
	"github.com/luciancaetano/gatewire/internal/cache"
	"github.com/luciancaetano/gatewire/internal/gateway"
	"github.com/luciancaetano/gatewire/internal/rest"
)

// Sweep configuration and storage re-exports, so embedders configure
// collections without importing internal packages.
type (
	CollectionConfig = cache.CollectionConfig
	Collection       = cache.Collection
	SweepFilter      = cache.SweepFilter
)

const (
	ModeFull    = cache.ModeFull
	ModePartial = cache.ModePartial
)

// MaxAgeFilter returns a sweep filter matching entries older than maxAge.
var MaxAgeFilter = cache.MaxAgeFilter

// NewMemoryAdapter returns the default in-memory collection storage.
func NewMemoryAdapter() gatewire.Adapter { return cache.NewMemoryAdapter() }

// NewRedisAdapter returns out-of-process collection storage backed by a
// Redis hash plus an insertion-order index. ctx bounds every backend call.
func NewRedisAdapter(ctx context.Context, rc redis.UniversalClient, name string, logger *zap.Logger) gatewire.Adapter {
	return cache.NewRedisAdapter(ctx, rc, name, logger)
}

// WithReason attaches an audit reason to an outgoing request's context.
var WithReason = rest.WithReason

// Client is one connection to the remote service: a set of gateway shards,
// a request dispatcher and a cache manager sharing one lifecycle.
type Client struct {
	id     string
	cfg    *Config
	logger *zap.Logger

	gateway *gateway.Manager
	rest    *rest.Dispatcher
	cache   *cache.Manager
}

// New validates the configuration and builds a client. Nothing connects
// until Connect is called.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("client_id", id))

	gw, err := gateway.NewManager(gateway.ManagerConfig{
		Token:           cfg.Token,
		GatewayURL:      cfg.GatewayURL,
		ShardCount:      cfg.ShardCount,
		Intents:         cfg.Intents,
		MaxConcurrency:  cfg.MaxConcurrency,
		IdentifySpacing: cfg.IdentifySpacing,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := rest.NewDispatcher(rest.Config{
		Token:           cfg.Token,
		BaseURL:         cfg.APIBaseURL,
		MaxRetries:      cfg.MaxRetries,
		GlobalPerSecond: rate.Limit(cfg.GlobalPerSecond),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		id:      id,
		cfg:     cfg,
		logger:  logger,
		gateway: gw,
		rest:    dispatcher,
		cache: cache.NewManager(cache.ManagerConfig{
			SweepInterval: cfg.SweepInterval,
			Logger:        logger,
		}),
	}, nil
}

// ID returns the client instance identifier used in logs.
func (c *Client) ID() string { return c.id }

// Connect opens every shard and starts the cache sweeper. It blocks until
// all shards have completed their first handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.gateway.Open(ctx); err != nil {
		return err
	}
	c.cache.Start(context.Background())
	return nil
}

// Close shuts the client down: shards, dispatcher and sweeper.
func (c *Client) Close(ctx context.Context) error {
	err := c.gateway.Close(ctx)
	c.rest.Close()
	c.cache.Stop()
	return err
}

// Subscribe returns a subscription on the merged dispatch stream of all
// shards. A non-positive buffer uses the default.
func (c *Client) Subscribe(buffer int) gatewire.EventSubscription {
	return c.gateway.Subscribe(buffer)
}

// SubscribeLifecycle returns a subscription on shard lifecycle events.
func (c *Client) SubscribeLifecycle(buffer int) gatewire.LifecycleSubscription {
	return c.gateway.SubscribeLifecycle(buffer)
}

// Request dispatches one API call through its rate-limit bucket.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.rest.Request(ctx, method, path, body)
}

// RegisterCollection creates (or returns) the cache collection for an
// entity type.
func (c *Client) RegisterCollection(name string, cfg CollectionConfig) *Collection {
	return c.cache.Register(name, cfg)
}

// Collection returns a registered cache collection.
func (c *Client) Collection(name string) (*Collection, bool) {
	return c.cache.Collection(name)
}

// Shard returns the session for a shard index.
func (c *Client) Shard(id int) (gatewire.Shard, bool) {
	return c.gateway.Shard(id)
}

// Shards returns all shard sessions ordered by index.
func (c *Client) Shards() []gatewire.Shard {
	return c.gateway.Shards()
}

// ShardFor returns the shard owning the given entity id under the current
// topology.
func (c *Client) ShardFor(entityID uint64) (gatewire.Shard, bool) {
	return c.gateway.Shard(gateway.ShardID(entityID, c.cfg.ShardCount))
}

// Reshard restarts the gateway with a new total shard count, typically
// after the remote service signals a topology change.
func (c *Client) Reshard(ctx context.Context, totalShards int) error {
	c.cfg.ShardCount = totalShards
	return c.gateway.Reshard(ctx, totalShards)
}
