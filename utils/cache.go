// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"tutorbook/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient backs the webhook dedup cache.
	CacheClient *redis.Client
	// LockClient backs the per-booking single-writer locks.
	LockClient *redis.Client
)

func newRedisClient(db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
}

func mustPing(client *redis.Client, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", name, err)
	}
}

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = newRedisClient(config.AppConfig.RedisCacheDB)
	mustPing(CacheClient, "Cache")
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitLockCache initializes the Redis client used for distributed locks.
func InitLockCache() {
	LockClient = newRedisClient(config.AppConfig.RedisLockDB)
	mustPing(LockClient, "Lock")
}

// GetLockClient returns the Redis client used for distributed locks.
func GetLockClient() *redis.Client {
	if LockClient == nil {
		InitLockCache()
	}
	return LockClient
}
