package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
)

const redisKeyPrefix = "autopicker:"

// RedisCache is the optional remote tier.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	log        zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// NewRedisCache connects to the remote tier and verifies it with a ping.
func NewRedisCache(redisURL string, defaultTTL time.Duration, log zerolog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{
		client:     client,
		defaultTTL: defaultTTL,
		log:        log.With().Str("component", "redis-cache").Logger(),
	}, nil
}

// Get retrieves the value. Transport errors count as misses; the tiered
// cache degrades to local-only.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.errors.Add(1)
			metrics.RecordCacheDegraded()
		}
		c.misses.Add(1)
		metrics.RecordCacheOp("remote", "miss")
		return nil, false
	}

	c.hits.Add(1)
	metrics.RecordCacheOp("remote", "hit")
	return data, true
}

// Set stores the value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		c.errors.Add(1)
		metrics.RecordCacheDegraded()
		c.log.Debug().Err(err).Msg("remote cache set failed")
		return
	}
	c.sets.Add(1)
	metrics.RecordCacheOp("remote", "set")
}

// Delete removes the key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		c.errors.Add(1)
	}
}

// Stats reports the tier's counters.
func (c *RedisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Type:           "redis",
		Hits:           hits,
		Misses:         misses,
		Sets:           c.sets.Load(),
		HitRatePercent: hitRate(hits, misses),
		Degraded:       c.errors.Load(),
	}
}

// Close releases the connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
