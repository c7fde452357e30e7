package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// TieredCache reads through the local tier to the optional remote tier.
// Local misses that hit remotely populate the local tier. Writes land in
// the local tier synchronously and in the remote tier asynchronously
// best-effort, so a remote outage degrades to local-only.
type TieredCache struct {
	local  *LocalCache
	remote Cache
	group  singleflight.Group
}

// NewTieredCache combines the tiers. remote may be nil.
func NewTieredCache(local *LocalCache, remote Cache) *TieredCache {
	return &TieredCache{local: local, remote: remote}
}

// Get checks local first, then remote.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.local.Get(ctx, key); ok {
		return value, true
	}
	if c.remote == nil {
		return nil, false
	}

	value, ok := c.remote.Get(ctx, key)
	if !ok {
		return nil, false
	}
	c.local.Set(ctx, key, value, 0)
	return value, true
}

// Set writes both tiers.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.local.Set(ctx, key, value, ttl)
	if c.remote != nil {
		go c.remote.Set(context.WithoutCancel(ctx), key, value, ttl)
	}
}

// Delete removes the key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) {
	c.local.Delete(ctx, key)
	if c.remote != nil {
		c.remote.Delete(ctx, key)
	}
}

// GetOrCompute returns the cached value or invokes compute exactly once
// for concurrent callers of the same missing key; late arrivers share
// the computed value.
func (c *TieredCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the key before we entered
		// the flight.
		if cached, ok := c.Get(ctx, key); ok {
			return cached, nil
		}

		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, computed, ttl)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// Stats reports per-tier counters, local first.
func (c *TieredCache) Stats() []Stats {
	out := []Stats{c.local.Stats()}
	if c.remote != nil {
		out = append(out, c.remote.Stats())
	}
	return out
}
