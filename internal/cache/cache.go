// Package cache keeps the last successfully fetched set of synced sales per
// scope, so the sales view can stay populated while a re-fetch is failing.
package cache

import (
	"context"
	"sync"
	"time"

	"lapakpos/terminal/internal/api"
)

type SalesCache interface {
	Get(ctx context.Context, key string) ([]api.Sale, bool, error)
	Set(ctx context.Context, key string, sales []api.Sale, ttl time.Duration) error
}

type NoopSalesCache struct{}

func (NoopSalesCache) Get(_ context.Context, _ string) ([]api.Sale, bool, error) {
	return nil, false, nil
}

func (NoopSalesCache) Set(_ context.Context, _ string, _ []api.Sale, _ time.Duration) error {
	return nil
}

// MemorySalesCache is the in-process fallback used when no Redis address is
// configured. TTLs are checked lazily on read.
type MemorySalesCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	sales     []api.Sale
	expiresAt time.Time
}

func NewMemorySalesCache() *MemorySalesCache {
	return &MemorySalesCache{entries: make(map[string]memoryEntry)}
}

func (c *MemorySalesCache) Get(_ context.Context, key string) ([]api.Sale, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	out := make([]api.Sale, len(entry.sales))
	copy(out, entry.sales)
	return out, true, nil
}

func (c *MemorySalesCache) Set(_ context.Context, key string, sales []api.Sale, ttl time.Duration) error {
	entry := memoryEntry{sales: make([]api.Sale, len(sales))}
	copy(entry.sales, sales)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}
