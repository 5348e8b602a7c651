// Package cache provides the response cache used by the weather and mandi
// clients. Upstream forecasts and price listings change slowly, so repeated
// questions about the same district are served from memory.
package cache

import (
	"context"
	"time"
)

// CacheService defines the cache service interface.
type CacheService interface {
	// Get retrieves a value from cache.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache. A zero ttl uses the default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes one key, or every key with a prefix when the
	// pattern ends in "*" (weather:*).
	Invalidate(ctx context.Context, pattern string) error
}

// Loader produces a value on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
