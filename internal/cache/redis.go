package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/luciancaetano/gatewire"
)

// RedisAdapter stores a collection out of process: a Redis hash holds the
// entries and a companion sorted set, scored by insertion time, preserves
// insertion order. Best suited to partial-mode collections, whose raw wire
// records survive the JSON round trip unchanged.
//
// Adapter methods report no errors; backend failures are logged and read
// back as absent entries, matching the cache contract.
type RedisAdapter struct {
	client   redis.UniversalClient
	hashKey  string
	orderKey string
	ctx      context.Context
	logger   *zap.Logger
}

// redisEntry is the stored wire form of a cache entry.
type redisEntry struct {
	Value      json.RawMessage `json:"v"`
	InsertedAt int64           `json:"at"` // unix nanos
}

// NewRedisAdapter builds an adapter for one collection name. The keyspace
// is "gatewire:<name>". The context bounds every backend call.
func NewRedisAdapter(ctx context.Context, client redis.UniversalClient, name string, logger *zap.Logger) *RedisAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAdapter{
		client:   client,
		hashKey:  "gatewire:" + name,
		orderKey: "gatewire:" + name + ":order",
		ctx:      ctx,
		logger:   logger.With(zap.String("collection", name)),
	}
}

// Get returns the entry stored under key.
func (r *RedisAdapter) Get(key string) (gatewire.CacheEntry, bool) {
	raw, err := r.client.HGet(r.ctx, r.hashKey, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("redis get failed", zap.Error(err))
		}
		return gatewire.CacheEntry{}, false
	}
	return r.decode(key, []byte(raw))
}

// Set stores or overwrites an entry. ZAddNX keeps the original score on
// overwrite, so insertion order is preserved.
func (r *RedisAdapter) Set(entry gatewire.CacheEntry) {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		r.logger.Warn("redis set: value not serializable", zap.Error(err))
		return
	}
	data, err := json.Marshal(redisEntry{Value: value, InsertedAt: entry.InsertedAt.UnixNano()})
	if err != nil {
		r.logger.Warn("redis set: entry not serializable", zap.Error(err))
		return
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(r.ctx, r.hashKey, entry.Key, data)
	pipe.ZAddNX(r.ctx, r.orderKey, redis.Z{
		Score:  float64(entry.InsertedAt.UnixNano()),
		Member: entry.Key,
	})
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warn("redis set failed", zap.Error(err))
	}
}

// Delete removes the entry stored under key.
func (r *RedisAdapter) Delete(key string) bool {
	pipe := r.client.TxPipeline()
	del := pipe.HDel(r.ctx, r.hashKey, key)
	pipe.ZRem(r.ctx, r.orderKey, key)
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warn("redis delete failed", zap.Error(err))
		return false
	}
	return del.Val() > 0
}

// Clear removes all entries.
func (r *RedisAdapter) Clear() {
	if err := r.client.Del(r.ctx, r.hashKey, r.orderKey).Err(); err != nil {
		r.logger.Warn("redis clear failed", zap.Error(err))
	}
}

// Has reports whether an entry exists under key.
func (r *RedisAdapter) Has(key string) bool {
	ok, err := r.client.HExists(r.ctx, r.hashKey, key).Result()
	if err != nil {
		r.logger.Warn("redis exists failed", zap.Error(err))
		return false
	}
	return ok
}

// Len returns the number of stored entries.
func (r *RedisAdapter) Len() int {
	n, err := r.client.ZCard(r.ctx, r.orderKey).Result()
	if err != nil {
		r.logger.Warn("redis len failed", zap.Error(err))
		return 0
	}
	return int(n)
}

// Keys returns all keys, oldest insertion first.
func (r *RedisAdapter) Keys() []string {
	keys, err := r.client.ZRange(r.ctx, r.orderKey, 0, -1).Result()
	if err != nil {
		r.logger.Warn("redis keys failed", zap.Error(err))
		return nil
	}
	return keys
}

// Values returns all stored values, oldest insertion first.
func (r *RedisAdapter) Values() []any {
	entries := r.Entries()
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.Value)
	}
	return values
}

// Entries returns all entries, oldest insertion first.
func (r *RedisAdapter) Entries() []gatewire.CacheEntry {
	keys := r.Keys()
	if len(keys) == 0 {
		return nil
	}

	raw, err := r.client.HMGet(r.ctx, r.hashKey, keys...).Result()
	if err != nil {
		r.logger.Warn("redis entries failed", zap.Error(err))
		return nil
	}

	entries := make([]gatewire.CacheEntry, 0, len(keys))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if entry, ok := r.decode(keys[i], []byte(s)); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (r *RedisAdapter) decode(key string, data []byte) (gatewire.CacheEntry, bool) {
	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		r.logger.Warn("redis entry corrupt", zap.String("key", key), zap.Error(err))
		return gatewire.CacheEntry{}, false
	}

	var value any
	if err := json.Unmarshal(stored.Value, &value); err != nil {
		r.logger.Warn("redis value corrupt", zap.String("key", key), zap.Error(err))
		return gatewire.CacheEntry{}, false
	}
	return gatewire.CacheEntry{
		Key:        key,
		Value:      value,
		InsertedAt: time.Unix(0, stored.InsertedAt),
	}, true
}
