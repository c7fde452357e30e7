// Package cache provides the two-tier cache: a process-local LRU with a
// byte budget plus an optional remote Redis tier, combined with
// single-flight computation.
package cache

import (
	"context"
	"time"
)

// Cache is the read/write surface shared by both tiers.
type Cache interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key. A non-positive ttl uses the tier default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes key from the tier.
	Delete(ctx context.Context, key string)
	// Stats reports the tier's counters.
	Stats() Stats
}

// Stats mirrors the per-tier counters exposed on the performance
// endpoint.
type Stats struct {
	Type           string  `json:"cache_type"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Sets           int64   `json:"sets"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	Entries        int     `json:"memory_cache_size"`
	SizeBytes      int64   `json:"size_bytes,omitempty"`
	Degraded       int64   `json:"remote_degraded,omitempty"`
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
