package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAttemptStore persists rate-limit entries as Redis hashes so lockouts
// survive service restarts. Field layout mirrors the in-memory entry:
// attempts plus a unix-millisecond lockout deadline (0 = none).
type RedisAttemptStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAttemptStore(client redis.UniversalClient, prefix string) *RedisAttemptStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisAttemptStore{client: client, prefix: prefix}
}

func (s *RedisAttemptStore) Get(ctx context.Context, key string) (*RateLimitEntry, error) {
	vals, err := s.client.HGetAll(ctx, s.dataKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	attempts, err := strconv.Atoi(vals["attempts"])
	if err != nil {
		return nil, fmt.Errorf("malformed attempts value %q: %w", vals["attempts"], err)
	}
	entry := &RateLimitEntry{Attempts: attempts}
	lockoutMS, err := strconv.ParseInt(vals["lockout_until_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed lockout value %q: %w", vals["lockout_until_ms"], err)
	}
	if lockoutMS > 0 {
		until := time.UnixMilli(lockoutMS)
		entry.LockoutUntil = &until
	}
	return entry, nil
}

func (s *RedisAttemptStore) Put(ctx context.Context, key string, entry RateLimitEntry, ttl time.Duration) error {
	lockoutMS := int64(0)
	if entry.LockoutUntil != nil {
		lockoutMS = entry.LockoutUntil.UnixMilli()
	}
	dataKey := s.dataKey(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dataKey, "attempts", entry.Attempts, "lockout_until_ms", lockoutMS)
	if ttl > 0 {
		pipe.Expire(ctx, dataKey, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisAttemptStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.dataKey(key)).Err()
}

func (s *RedisAttemptStore) dataKey(key string) string {
	return s.prefix + ":" + key
}
