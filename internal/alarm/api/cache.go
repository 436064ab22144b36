package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 10 * time.Minute

// IdempotencyCache remembers which alarms were already accepted.
type IdempotencyCache interface {
	// TryMark returns true the first time key is seen within the TTL.
	TryMark(ctx context.Context, key string) (bool, error)
	// Release forgets keys whose batch could not be queued.
	Release(ctx context.Context, keys ...string) error
}

// NoopCache accepts everything.
type NoopCache struct{}

func (NoopCache) TryMark(context.Context, string) (bool, error) { return true, nil }

func (NoopCache) Release(context.Context, ...string) error { return nil }

// RedisCache marks keys with SETNX so several ingest replicas share one view.
type RedisCache struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisCache{R: rdb, TTL: ttl, Prefix: "alarmhook:dedup:"}
}

func (c *RedisCache) TryMark(ctx context.Context, key string) (bool, error) {
	if c == nil || c.R == nil {
		return true, nil
	}
	ok, err := c.R.SetNX(ctx, c.Prefix+key, 1, c.TTL).Result()
	if err != nil {
		// best effort: an unavailable cache must not drop alarms
		return true, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisCache) Release(ctx context.Context, keys ...string) error {
	if c == nil || c.R == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Prefix + k
	}
	if err := c.R.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// NewRedisClient returns nil when addr is empty.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
