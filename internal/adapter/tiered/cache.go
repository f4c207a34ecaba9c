// Package tiered combines an in-process cache with a shared remote cache so
// that status entries and their invalidations are visible to every relay
// instance.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/depositrelay/internal/port/cache"
)

// Cache reads through local then shared. The shared level is best effort:
// its failures are logged and the local level keeps serving.
type Cache struct {
	local    cache.Cache
	shared   cache.Cache
	localTTL time.Duration
}

// New creates a tiered cache. Entries copied down from the shared level live
// at most localTTL in the local level.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

// Get checks the local level, then the shared one, copying shared hits down.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "shared cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, true, nil
}

// Set writes to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "shared cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes the key from the shared level first, so a concurrent local
// miss cannot copy the stale entry back down.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.shared.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "shared cache delete failed", "key", key, "error", err)
	}
	return c.local.Delete(ctx, key)
}
