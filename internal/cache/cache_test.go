package cache

import (
	"context"
	"testing"
	"time"

	"lapakpos/terminal/internal/api"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemorySalesCache()
	ctx := context.Background()

	sales := []api.Sale{{ID: 1, InvoiceNumber: "INV-1"}}
	if err := c.Set(ctx, "shift:7", sales, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "shift:7")
	if err != nil || !ok {
		t.Fatalf("expected a hit, ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].InvoiceNumber != "INV-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	// The returned slice is a copy; mutating it must not touch the cache.
	got[0].InvoiceNumber = "MUTATED"
	again, _, _ := c.Get(ctx, "shift:7")
	if again[0].InvoiceNumber != "INV-1" {
		t.Fatalf("cache entry mutated through the returned slice")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemorySalesCache()
	if _, ok, err := c.Get(context.Background(), "shift:404"); ok || err != nil {
		t.Fatalf("expected a clean miss, ok=%v err=%v", ok, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemorySalesCache()
	ctx := context.Background()

	if err := c.Set(ctx, "day:2026-08-30", []api.Sale{{ID: 2}}, 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "day:2026-08-30"); ok {
		t.Fatalf("expired entry must read as a miss")
	}
}
