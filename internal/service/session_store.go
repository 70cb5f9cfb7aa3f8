package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKV is the session-scoped key-value store holding the client-local
// identity bits: the access code and its resolved owner. Entries carry a
// browsing-session TTL so student access does not outlive the session;
// representative identity lives in the signed session token instead, and the
// derived active rep id is always recomputed, never stored.
type SessionKV interface {
	Get(ctx context.Context, sessionID, key string) (string, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Remove(ctx context.Context, sessionID, key string) error
}

const (
	kvKeyAccessCode  = "access_code"
	kvKeyCodeOwnerID = "code_owner_id"
)

type InMemorySessionKV struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewInMemorySessionKV() *InMemorySessionKV {
	return &InMemorySessionKV{entries: make(map[string]string)}
}

func (s *InMemorySessionKV) Get(_ context.Context, sessionID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[sessionID+":"+key], nil
}

func (s *InMemorySessionKV) Set(_ context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID+":"+key] = value
	return nil
}

func (s *InMemorySessionKV) Remove(_ context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID+":"+key)
	return nil
}

type RedisSessionKV struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionKV(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionKV {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisSessionKV{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionKV) Get(ctx context.Context, sessionID, key string) (string, error) {
	val, err := s.client.Get(ctx, s.dataKey(sessionID, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisSessionKV) Set(ctx context.Context, sessionID, key, value string) error {
	return s.client.Set(ctx, s.dataKey(sessionID, key), value, s.ttl).Err()
}

func (s *RedisSessionKV) Remove(ctx context.Context, sessionID, key string) error {
	return s.client.Del(ctx, s.dataKey(sessionID, key)).Err()
}

func (s *RedisSessionKV) dataKey(sessionID, key string) string {
	return s.prefix + ":" + sessionID + ":" + key
}
