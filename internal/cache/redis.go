package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "enterprise:course_mode:"

// RedisClient is the subset of go-redis client methods used by RedisModeCache
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisModeCache stores resolved course modes in Redis so that lookups are
// shared across requests and instances.
type RedisModeCache struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

// Connect dials Redis and verifies the connection with PING
func Connect(ctx context.Context, cfg Config) (*RedisModeCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisModeCache(client, cfg.TTL, cfg.Prefix), nil
}

// NewRedisModeCache creates a cache over an existing client. An empty
// prefix uses the default key namespace.
func NewRedisModeCache(client RedisClient, ttl time.Duration, prefix string) *RedisModeCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisModeCache{client: client, ttl: ttl, prefix: prefix}
}

// Get returns the cached mode for a course run. ok is false on a miss.
func (c *RedisModeCache) Get(ctx context.Context, courseRunKey string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+courseRunKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read course mode from redis: %w", err)
	}
	return val, true, nil
}

// Set caches the mode for a course run
func (c *RedisModeCache) Set(ctx context.Context, courseRunKey, mode string) error {
	if err := c.client.Set(ctx, c.prefix+courseRunKey, mode, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write course mode to redis: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (c *RedisModeCache) Close() error {
	return c.client.Close()
}
