package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for poll-outcome deduplication.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func pollKey(orderID, pollID string) string {
	return fmt.Sprintf("poll:%s:%s", orderID, pollID)
}

// ClaimPoll marks one physical poll as applied. Returns false when the same
// poll id was already applied, so a redelivered outcome is not counted twice.
func (c *Client) ClaimPoll(
	ctx context.Context,
	orderID, pollID string,
	ttl time.Duration,
) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, pollKey(orderID, pollID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release drops a poll claim whose outcome could not be applied, so a retry
// of the same poll id is treated as fresh.
func (c *Client) Release(ctx context.Context, orderID, pollID string) error {
	if err := c.rdb.Del(ctx, pollKey(orderID, pollID)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
