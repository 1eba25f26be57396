package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SeenCache remembers webhook deliveries that were already applied. It is
// only a fast path: the payment record's status is the source of truth.
type SeenCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type RedisSeenCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisSeenCache(client *redis.Client) *RedisSeenCache {
	return &RedisSeenCache{Client: client, TTL: 72 * time.Hour}
}

func (c *RedisSeenCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.Client.Exists(ctx, "webhook:"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisSeenCache) Mark(ctx context.Context, key string) error {
	return c.Client.Set(ctx, "webhook:"+key, 1, c.TTL).Err()
}

type MemorySeenCache struct {
	keys sync.Map
}

func (c *MemorySeenCache) Seen(_ context.Context, key string) (bool, error) {
	_, ok := c.keys.Load(key)
	return ok, nil
}

func (c *MemorySeenCache) Mark(_ context.Context, key string) error {
	c.keys.Store(key, struct{}{})
	return nil
}
