package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalCacheGetSet(t *testing.T) {
	c, err := NewLocalCache(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set(ctx, "k", []byte("value"), time.Minute)
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "value" {
		t.Fatalf("Get = %q, %v; want value, true", got, ok)
	}
}

func TestLocalCacheTTLExpiry(t *testing.T) {
	c, err := NewLocalCache(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(ctx, "short"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestLocalCacheByteBudgetEviction(t *testing.T) {
	// Budget is split across shards, so keep everything in one shard by
	// using a tiny budget and checking the aggregate bound instead.
	budget := int64(16 * 1024)
	c, err := NewLocalCache(budget, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	ctx := context.Background()

	value := make([]byte, 512)
	for i := 0; i < 256; i++ {
		c.Set(ctx, fmt.Sprintf("key-%03d", i), value, time.Minute)
	}

	stats := c.Stats()
	if stats.SizeBytes > budget {
		t.Fatalf("cache holds %d bytes, budget is %d", stats.SizeBytes, budget)
	}
	if stats.Entries == 0 {
		t.Fatal("expected some entries to survive eviction")
	}
}

func TestLocalCacheOversizedValueDropped(t *testing.T) {
	c, err := NewLocalCache(8*1024, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	ctx := context.Background()

	c.Set(ctx, "huge", make([]byte, 64*1024), time.Minute)
	if _, ok := c.Get(ctx, "huge"); ok {
		t.Fatal("value larger than a shard budget must not be cached")
	}
}

func TestTieredCacheSingleFlight(t *testing.T) {
	local, err := NewLocalCache(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	tiered := NewTieredCache(local, nil)

	var calls atomic.Int64
	compute := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("computed"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := tiered.GetOrCompute(context.Background(), "flight-key", time.Minute, compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			results[i] = string(value)
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("producer invoked %d times, want exactly 1", got)
	}
	for i, r := range results {
		if r != "computed" {
			t.Fatalf("results[%d] = %q, want computed", i, r)
		}
	}
}

func TestTieredCacheComputeErrorNotCached(t *testing.T) {
	local, err := NewLocalCache(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("NewLocalCache: %v", err)
	}
	tiered := NewTieredCache(local, nil)

	var calls atomic.Int64
	boom := fmt.Errorf("compute failed")

	for i := 0; i < 2; i++ {
		_, err := tiered.GetOrCompute(context.Background(), "err-key", time.Minute, func(ctx context.Context) ([]byte, error) {
			calls.Add(1)
			return nil, boom
		})
		if err == nil {
			t.Fatal("expected compute error")
		}
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("failed computations must not be cached; got %d calls, want 2", got)
	}
}
