// Package cache defines the port interface for short-lived response caching.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value cache. Misses are reported through the
// boolean, not as errors.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DepositStatusKey is the cache key for a provider status lookup.
func DepositStatusKey(depositID string) string {
	return "deposit:status:" + depositID
}
