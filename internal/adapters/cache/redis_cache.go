package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

const redisKeyPrefix = "phish:whois:"

// RedisCache is a Redis implementation of core.WhoisCache. Redis expires
// keys itself, so Cleanup has nothing to do.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	now    Clock
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, opts *redis.Options, logger *zap.Logger, now Clock) (*RedisCache, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisCacheWithClient(client, logger, now), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, logger *zap.Logger, now Clock) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
		now:    now.orDefault(),
	}
}

// Get retrieves a live entry for a domain
func (c *RedisCache) Get(ctx context.Context, domain string) (*core.WhoisCacheEntry, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+domain).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var entry core.WhoisCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if !c.now().Before(entry.ExpiresAt) {
		return nil, ErrExpired
	}
	return &entry, nil
}

// Set stores an entry with a Redis TTL matching its expiry
func (c *RedisCache) Set(ctx context.Context, entry *core.WhoisCacheEntry) error {
	ttl := entry.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Delete(ctx, entry.Domain)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+entry.Domain, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (c *RedisCache) Delete(ctx context.Context, domain string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+domain).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis evicts expired keys
func (c *RedisCache) Cleanup(ctx context.Context) error {
	return nil
}

// Stop closes the Redis connection
func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
