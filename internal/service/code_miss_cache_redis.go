package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCodeMissCache shares miss knowledge across instances. Each miss is a
// short-TTL key plus membership in an index set so Clear can drop the whole
// namespace without a scan.
type RedisCodeMissCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCodeMissCache(client redis.UniversalClient, prefix string) *RedisCodeMissCache {
	if prefix == "" {
		prefix = "code_miss"
	}
	return &RedisCodeMissCache{client: client, prefix: prefix}
}

func (c *RedisCodeMissCache) Contains(ctx context.Context, code string) (bool, error) {
	_, err := c.client.Get(ctx, c.dataKey(code)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCodeMissCache) Add(ctx context.Context, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	dataKey := c.dataKey(code)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dataKey, "1", ttl)
	pipe.SAdd(ctx, c.indexKey(), dataKey)
	pipe.Expire(ctx, c.indexKey(), ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCodeMissCache) Clear(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := c.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, c.indexKey())
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCodeMissCache) dataKey(code string) string {
	return c.prefix + ":data:" + code
}

func (c *RedisCodeMissCache) indexKey() string {
	return c.prefix + ":index"
}
