package service

import (
	"context"
	"testing"
	"time"
)

func TestRedisAttemptStoreRoundTrip(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisAttemptStore(client, "")
	ctx := context.Background()

	if entry, err := store.Get(ctx, "rep_login:s1"); err != nil || entry != nil {
		t.Fatalf("expected empty store, got entry=%v err=%v", entry, err)
	}

	until := time.Now().Add(15 * time.Minute).Truncate(time.Millisecond)
	if err := store.Put(ctx, "rep_login:s1", RateLimitEntry{Attempts: 3, LockoutUntil: &until}, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, err := store.Get(ctx, "rep_login:s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Attempts != 3 {
		t.Fatalf("attempts=%d want 3", entry.Attempts)
	}
	if entry.LockoutUntil == nil || !entry.LockoutUntil.Equal(until) {
		t.Fatalf("lockout=%v want %v", entry.LockoutUntil, until)
	}

	if err := store.Delete(ctx, "rep_login:s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if entry, err := store.Get(ctx, "rep_login:s1"); err != nil || entry != nil {
		t.Fatalf("expected deleted entry, got entry=%v err=%v", entry, err)
	}
}

func TestRedisAttemptStoreZeroLockoutMeansNone(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisAttemptStore(client, "")
	ctx := context.Background()

	if err := store.Put(ctx, "student_code:s1", RateLimitEntry{Attempts: 2}, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := store.Get(ctx, "student_code:s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Attempts != 2 || entry.LockoutUntil != nil {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRedisAttemptStoreRejectsMalformedValues(t *testing.T) {
	server, client := newRedisClientForTest(t)
	store := NewRedisAttemptStore(client, "")
	ctx := context.Background()

	server.HSet("ratelimit:rep_login:s1", "attempts", "garbage", "lockout_until_ms", "0")
	if _, err := store.Get(ctx, "rep_login:s1"); err == nil {
		t.Fatal("expected error for malformed attempts")
	}

	server.HSet("ratelimit:rep_login:s2", "attempts", "2", "lockout_until_ms", "not-a-number")
	if _, err := store.Get(ctx, "rep_login:s2"); err == nil {
		t.Fatal("expected error for malformed lockout")
	}
}

func TestRedisAttemptStoreEntriesExpire(t *testing.T) {
	server, client := newRedisClientForTest(t)
	store := NewRedisAttemptStore(client, "")
	ctx := context.Background()

	if err := store.Put(ctx, "rep_login:s1", RateLimitEntry{Attempts: 1}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	server.FastForward(2 * time.Minute)
	if entry, err := store.Get(ctx, "rep_login:s1"); err != nil || entry != nil {
		t.Fatalf("expected expired entry, got entry=%v err=%v", entry, err)
	}
}

func TestRateLimiterWithRedisStoreSurvivesRestart(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisAttemptStore(client, "")
	ctx := context.Background()

	first := newTestLimiter(store)
	for i := 0; i < 4; i++ {
		first.Record(ctx, KeyRepLogin, "s1")
	}

	// A fresh limiter sharing the same Redis sees the lockout.
	second := newTestLimiter(store)
	if d := second.Check(ctx, KeyRepLogin, "s1"); d.Allowed {
		t.Fatal("expected persisted lockout to hold across instances")
	}
}
