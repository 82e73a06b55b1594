// Package cache provides a shared cache for the quota configuration.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyQuotaConfig holds the encoded singleton configuration.
	KeyQuotaConfig = "hiretrack:quota:config"

	// DefaultTTL bounds how long a replica may serve a stale configuration
	// after another replica updates it and the invalidation is lost.
	DefaultTTL = 5 * time.Minute
)

// ConfigCache stores the validated quota configuration.
type ConfigCache interface {
	// Get returns the cached configuration, or nil with no error on a miss.
	Get(ctx context.Context) (*domain.QuotaConfig, error)
	Set(ctx context.Context, cfg *domain.QuotaConfig) error
	Invalidate(ctx context.Context) error
}

// RedisConfigCache implements ConfigCache on Redis.
type RedisConfigCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConfigCache creates a Redis-backed configuration cache.
func NewRedisConfigCache(client *redis.Client, ttl time.Duration) *RedisConfigCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisConfigCache{client: client, ttl: ttl}
}

// NewRedisClient parses url and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *RedisConfigCache) Get(ctx context.Context) (*domain.QuotaConfig, error) {
	data, err := c.client.Get(ctx, KeyQuotaConfig).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg domain.QuotaConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode cached config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cached config is invalid: %w", err)
	}
	return &cfg, nil
}

func (c *RedisConfigCache) Set(ctx context.Context, cfg *domain.QuotaConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, KeyQuotaConfig, data, c.ttl).Err()
}

func (c *RedisConfigCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, KeyQuotaConfig).Err()
}

// Nop is a ConfigCache that never holds anything.
type Nop struct{}

func (Nop) Get(context.Context) (*domain.QuotaConfig, error) { return nil, nil }
func (Nop) Set(context.Context, *domain.QuotaConfig) error   { return nil }
func (Nop) Invalidate(context.Context) error                  { return nil }
