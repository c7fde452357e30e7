package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
)

const shardCount = 8

// entry is one cached value with its expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
	size      int64
}

// localShard is one lock domain of the local tier.
type localShard struct {
	mu         sync.Mutex
	lru        *lru.Cache
	bytes      int64
	byteBudget int64
}

// LocalCache is the in-process tier: strict LRU within each of N shards,
// bounded by a total byte budget, with per-entry TTL.
type LocalCache struct {
	shards     [shardCount]*localShard
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewLocalCache builds the local tier with the given byte budget split
// evenly across shards.
func NewLocalCache(byteBudget int64, defaultTTL time.Duration) (*LocalCache, error) {
	if byteBudget <= 0 {
		byteBudget = 128 << 20
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	c := &LocalCache{defaultTTL: defaultTTL}
	for i := range c.shards {
		shard := &localShard{byteBudget: byteBudget / shardCount}
		// Entry-count limit is a safety net; the byte budget is the
		// real bound and is enforced on every Set.
		inner, err := lru.NewWithEvict(65536, func(_, value interface{}) {
			if e, ok := value.(*entry); ok {
				shard.bytes -= e.size
			}
		})
		if err != nil {
			return nil, err
		}
		shard.lru = inner
		c.shards[i] = shard
	}
	return c, nil
}

func (c *LocalCache) shard(key string) *localShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the cached value unless it is absent or past its expiry.
// Expired entries are removed on read.
func (c *LocalCache) Get(ctx context.Context, key string) ([]byte, bool) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	raw, ok := shard.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		metrics.RecordCacheOp("local", "miss")
		return nil, false
	}

	e := raw.(*entry)
	if time.Now().After(e.expiresAt) {
		shard.lru.Remove(key)
		c.misses.Add(1)
		metrics.RecordCacheOp("local", "miss")
		return nil, false
	}

	c.hits.Add(1)
	metrics.RecordCacheOp("local", "hit")
	return e.value, true
}

// Set stores the value and evicts in strict LRU order until the shard is
// back under its byte budget.
func (c *LocalCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	e := &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
		size:      int64(len(key) + len(value)),
	}

	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if e.size > shard.byteBudget {
		return
	}

	// Remove first so the eviction callback releases the old entry's bytes.
	shard.lru.Remove(key)
	shard.lru.Add(key, e)
	shard.bytes += e.size
	for shard.bytes > shard.byteBudget && shard.lru.Len() > 0 {
		shard.lru.RemoveOldest()
	}

	c.sets.Add(1)
	metrics.RecordCacheOp("local", "set")
}

// Delete removes the key.
func (c *LocalCache) Delete(ctx context.Context, key string) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.lru.Remove(key)
}

// Stats reports the tier's counters.
func (c *LocalCache) Stats() Stats {
	var entries int
	var bytes int64
	for _, shard := range c.shards {
		shard.mu.Lock()
		entries += shard.lru.Len()
		bytes += shard.bytes
		shard.mu.Unlock()
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Type:           "memory",
		Hits:           hits,
		Misses:         misses,
		Sets:           c.sets.Load(),
		HitRatePercent: hitRate(hits, misses),
		Entries:        entries,
		SizeBytes:      bytes,
	}
}
