// Package ristretto implements the cache port on dgraph-io/ristretto. It
// holds encoded statistics rollups and idempotent HTTP responses, and is the
// first tier in front of the shared bucket when NATS is configured.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is an in-process, cost-bounded cache. Cost is the byte size of key
// plus value.
type Cache struct {
	c       *ristretto.Cache[string, []byte]
	maxCost int64
}

// New creates a cache bounded to maxSizeMB megabytes.
func New(maxSizeMB int64) (*Cache, error) {
	maxCost := max(maxSizeMB, 1) << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// ristretto wants ~10 counters per expected entry; entries here are
		// around 1 KiB.
		NumCounters: (maxCost >> 10) * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c, maxCost: maxCost}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	return val, ok, nil
}

// Set stores value for ttl and waits for the write buffer to drain so an
// immediate Get observes it. Values larger than the whole cache are refused.
// Admission may still drop a value under contention; that is a miss later,
// not an error.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(key) + len(value))
	if cost > c.maxCost {
		return fmt.Errorf("ristretto: entry %q of %d bytes exceeds cache size %d", key, cost, c.maxCost)
	}
	c.c.SetWithTTL(key, value, cost, ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops ristretto's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
