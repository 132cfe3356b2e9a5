package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/bookbridge/searchd/pkg/errors"
	"github.com/bookbridge/searchd/pkg/redis"
	"github.com/bookbridge/searchd/pkg/resilience"
)

// RedisBackend stores entries in Redis so cache hits survive process
// restarts and are shared across replicas. All failures degrade to a
// miss; a circuit breaker keeps a down Redis from slowing every query.
type RedisBackend struct {
	client  *redis.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewRedis creates a Redis-backed cache backend.
func NewRedis(client *redis.Client, breaker *resilience.CircuitBreaker) *RedisBackend {
	return &RedisBackend{
		client:  client,
		breaker: breaker,
		logger:  slog.Default().With("component", "redis-cache"),
	}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (*Entry, bool) {
	var raw string
	err := b.breaker.Execute(func() error {
		var err error
		raw, err = b.client.Get(ctx, key)
		return err
	})
	if err != nil {
		if !redis.IsNilError(err) {
			b.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		b.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		b.Delete(ctx, key)
		return nil, false
	}
	return &entry, true
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	payload, err := json.Marshal(entry)
	if err != nil {
		b.logger.Warn("cache entry marshal failed", "key", key, "error", err)
		return
	}
	err = b.breaker.Execute(func() error {
		return b.client.Set(ctx, key, string(payload), ttl)
	})
	if err != nil {
		b.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	err := b.breaker.Execute(func() error {
		return b.client.Del(ctx, keys...)
	})
	if err != nil {
		b.logger.Warn("cache delete failed", "error", err)
	}
}

// InvalidateDocs flushes the whole keyspace. Redis entries do not admit a
// cheap per-document reverse scan; the revision check in QueryCache.Get
// already guarantees correctness, so the flush only trades hit rate for
// freshness.
func (b *RedisBackend) InvalidateDocs(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := b.InvalidateAll(ctx); err != nil {
		b.logger.Warn("cache invalidation flush failed", "error", err)
	}
}

func (b *RedisBackend) InvalidateAll(ctx context.Context) error {
	err := b.breaker.Execute(func() error {
		_, err := b.client.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	return nil
}
