package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisOpTimeout = 250 * time.Millisecond

type redisCache[V any] struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedisCache stores JSON-encoded values under prefix. Redis failures are
// logged and treated as misses so callers fall back to the database.
func NewRedisCache[V any](client *redis.Client, prefix string, log *zap.Logger) Cache[string, V] {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisCache[V]{client: client, prefix: prefix, log: log}
}

func (c *redisCache[V]) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *redisCache[V]) Get(key string) (V, bool) {
	var zero V
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", c.key(key)), zap.Error(err))
		}
		return zero, false
	}
	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Warn("redis cache decode failed", zap.String("key", c.key(key)), zap.Error(err))
		return zero, false
	}
	return value, true
}

func (c *redisCache[V]) Set(key string, value V, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("redis cache encode failed", zap.String("key", c.key(key)), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", c.key(key)), zap.Error(err))
	}
}

func (c *redisCache[V]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.log.Warn("redis cache delete failed", zap.String("key", c.key(key)), zap.Error(err))
	}
}
