// Package cache holds the Redis-backed state shared between API replicas:
// resolved principals, rate limit buckets, directory snapshots and submit
// locks.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
}

// New parses redisURL, connects and pings.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := clientOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func clientOptions(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	return opt, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping reports Redis reachability for the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
