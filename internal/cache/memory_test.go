package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewSimpleMemoryCache(time.Minute)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) err = %v, want ErrCacheMiss", err)
	}

	if err := c.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}

	// Mutating the returned slice must not corrupt the cached value.
	got[0] = 'X'
	again, _ := c.Get(ctx, "key")
	if string(again) != "value" {
		t.Errorf("cached value mutated to %q", again)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired Get err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute, MaxSize: 2})
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("Get(a): %v", err)
	}

	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(b) err = %v, want evicted", err)
	}
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Errorf("Get(a) err = %v, want recently used entry kept", err)
	}
	if _, err := c.Get(ctx, "c"); err != nil {
		t.Errorf("Get(c) err = %v, want newest entry kept", err)
	}
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewSimpleMemoryCache(time.Minute)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Error("deleted key still present")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Error("cleared key still present")
	}
}

func TestMemoryCacheClosed(t *testing.T) {
	c := NewSimpleMemoryCache(time.Minute)
	_ = c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Set after Close err = %v, want ErrCacheClosed", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after Close err = %v, want ErrCacheClosed", err)
	}
	// Closing twice is safe.
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewSimpleMemoryCache(time.Minute)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("Stats = %+v, want 1 hit, 1 miss, 1 set", stats)
	}
	if stats.Items != 1 {
		t.Errorf("Items = %d, want 1", stats.Items)
	}
	if stats.HitRate != 50 {
		t.Errorf("HitRate = %v, want 50", stats.HitRate)
	}
}
