package service

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryCodeMissCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCodeMissCache()

	if ok, _ := cache.Contains(ctx, "CLAS29999"); ok {
		t.Fatal("empty cache must not contain anything")
	}
	if err := cache.Add(ctx, "CLAS29999", 20*time.Millisecond); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, _ := cache.Contains(ctx, "CLAS29999"); !ok {
		t.Fatal("expected cached miss")
	}

	time.Sleep(30 * time.Millisecond)
	if ok, _ := cache.Contains(ctx, "CLAS29999"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestInMemoryCodeMissCacheZeroTTLIsNoop(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCodeMissCache()
	if err := cache.Add(ctx, "CLAS29999", 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, _ := cache.Contains(ctx, "CLAS29999"); ok {
		t.Fatal("zero ttl must not cache")
	}
}

func TestInMemoryCodeMissCacheClear(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCodeMissCache()
	_ = cache.Add(ctx, "CLAS29999", time.Minute)
	_ = cache.Add(ctx, "CLAS29998", time.Minute)
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := cache.Contains(ctx, "CLAS29999"); ok {
		t.Fatal("clear must drop all entries")
	}
}
