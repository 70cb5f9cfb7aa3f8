package service

import (
	"context"
	"sync"
	"time"
)

// CodeMissCache remembers access codes that definitively resolved to
// nothing, so repeated guesses of the same wrong code are answered without
// touching the store. Entries expire quickly; a code provisioned after a
// cached miss becomes resolvable as soon as the TTL lapses or the cache is
// cleared.
type CodeMissCache interface {
	Contains(ctx context.Context, code string) (bool, error)
	Add(ctx context.Context, code string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type NoopCodeMissCache struct{}

func NewNoopCodeMissCache() *NoopCodeMissCache { return &NoopCodeMissCache{} }

func (c *NoopCodeMissCache) Contains(context.Context, string) (bool, error) { return false, nil }

func (c *NoopCodeMissCache) Add(context.Context, string, time.Duration) error { return nil }

func (c *NoopCodeMissCache) Clear(context.Context) error { return nil }

type InMemoryCodeMissCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewInMemoryCodeMissCache() *InMemoryCodeMissCache {
	return &InMemoryCodeMissCache{entries: make(map[string]time.Time)}
}

func (c *InMemoryCodeMissCache) Contains(_ context.Context, code string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	expiresAt, ok := c.entries[code]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		delete(c.entries, code)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryCodeMissCache) Add(_ context.Context, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = time.Now().UTC().Add(ttl)
	return nil
}

func (c *InMemoryCodeMissCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
	return nil
}
