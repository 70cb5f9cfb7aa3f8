package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/portal-access/internal/observability"
)

// Rate-limit purposes. Each purpose carries its own attempt budget and
// cooldown; entries are scoped per client session underneath.
const (
	KeyRepLogin    = "rep_login"
	KeyStudentCode = "student_code"
)

// RateLimitEntry is the persisted attempt state for one key.
type RateLimitEntry struct {
	Attempts     int
	LockoutUntil *time.Time
}

// AttemptStore is the persisted backing store for rate-limit entries. A nil
// entry means the key is unknown.
type AttemptStore interface {
	Get(ctx context.Context, key string) (*RateLimitEntry, error)
	Put(ctx context.Context, key string, entry RateLimitEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RateLimitPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

type Decision struct {
	Allowed           bool
	RetryAfterMinutes int
}

// RateLimiter tracks failed attempts per (purpose, scope) key against two
// sources: a process-local cache and a persisted AttemptStore. Reads merge
// the two by taking the maximum attempts and the later lockout, so wiping
// the persisted store alone cannot cancel a lockout that this process has
// already observed. The local cache lives for the process lifetime and is
// cleared only by Reset or an expired lockout.
type RateLimiter struct {
	mu       sync.Mutex
	local    map[string]RateLimitEntry
	store    AttemptStore
	policies map[string]RateLimitPolicy
	entryTTL time.Duration
	now      func() time.Time
}

func NewRateLimiter(store AttemptStore, policies map[string]RateLimitPolicy, entryTTL time.Duration) *RateLimiter {
	return &RateLimiter{
		local:    make(map[string]RateLimitEntry),
		store:    store,
		policies: policies,
		entryTTL: entryTTL,
		now:      time.Now,
	}
}

// Check reports whether another attempt may proceed for the given purpose
// and scope. An expired lockout resets both stores before allowing.
func (r *RateLimiter) Check(ctx context.Context, purpose, scope string) Decision {
	key := rateLimitKey(purpose, scope)
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.merged(ctx, key)
	if entry.LockoutUntil != nil {
		now := r.now()
		if now.Before(*entry.LockoutUntil) {
			remaining := entry.LockoutUntil.Sub(now)
			observability.RecordRateLimitDecision(ctx, purpose, "deny")
			return Decision{Allowed: false, RetryAfterMinutes: ceilMinutes(remaining)}
		}
		// Lockout served in full; start the window over in both stores.
		delete(r.local, key)
		if err := r.store.Delete(ctx, key); err != nil {
			slog.Debug("rate limit store delete failed", "key", key, "error", err)
		}
	}
	observability.RecordRateLimitDecision(ctx, purpose, "allow")
	return Decision{Allowed: true}
}

// Record registers a failed attempt and returns the new attempt count.
// Crossing the policy threshold arms the lockout. Writes go to both the
// local cache and the persisted store; persisted failures are non-fatal.
func (r *RateLimiter) Record(ctx context.Context, purpose, scope string) int {
	key := rateLimitKey(purpose, scope)
	policy := r.policies[purpose]
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.merged(ctx, key)
	entry.Attempts++
	if policy.MaxAttempts > 0 && entry.Attempts >= policy.MaxAttempts {
		until := r.now().Add(policy.Cooldown)
		entry.LockoutUntil = &until
	}
	r.local[key] = entry
	if err := r.store.Put(ctx, key, entry, r.entryTTL); err != nil {
		slog.Debug("rate limit store write failed", "key", key, "error", err)
	}
	observability.RecordRateLimitDecision(ctx, purpose, "record")
	return entry.Attempts
}

// Reset clears both stores for the key. Called only after a successful
// login or code resolution.
func (r *RateLimiter) Reset(ctx context.Context, purpose, scope string) {
	key := rateLimitKey(purpose, scope)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.local, key)
	if err := r.store.Delete(ctx, key); err != nil {
		slog.Debug("rate limit store delete failed", "key", key, "error", err)
	}
}

// merged reads both sources under the held lock and keeps the stricter
// view: max attempts, later lockout.
func (r *RateLimiter) merged(ctx context.Context, key string) RateLimitEntry {
	entry := r.local[key]
	persisted, err := r.store.Get(ctx, key)
	if err != nil {
		slog.Debug("rate limit store read failed", "key", key, "error", err)
		return entry
	}
	if persisted == nil {
		return entry
	}
	if persisted.Attempts > entry.Attempts {
		entry.Attempts = persisted.Attempts
	}
	if persisted.LockoutUntil != nil {
		if entry.LockoutUntil == nil || persisted.LockoutUntil.After(*entry.LockoutUntil) {
			entry.LockoutUntil = persisted.LockoutUntil
		}
	}
	return entry
}

func rateLimitKey(purpose, scope string) string {
	if scope == "" {
		return purpose
	}
	return purpose + ":" + scope
}

func ceilMinutes(d time.Duration) int {
	ms := d.Milliseconds()
	mins := int(ms / 60000)
	if ms%60000 != 0 {
		mins++
	}
	if mins < 1 {
		mins = 1
	}
	return mins
}

// InMemoryAttemptStore is the persisted-store stand-in for deployments
// without Redis and for tests.
type InMemoryAttemptStore struct {
	mu      sync.Mutex
	entries map[string]RateLimitEntry
}

func NewInMemoryAttemptStore() *InMemoryAttemptStore {
	return &InMemoryAttemptStore{entries: make(map[string]RateLimitEntry)}
}

func (s *InMemoryAttemptStore) Get(_ context.Context, key string) (*RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *InMemoryAttemptStore) Put(_ context.Context, key string, entry RateLimitEntry, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *InMemoryAttemptStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
