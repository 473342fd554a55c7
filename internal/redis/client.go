package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client owns the shared go-redis connection. It is constructed once at
// startup when REDIS_URL is set; every redis-backed component hangs off it.
type Client struct {
	rdb *goredis.Client
}

// NewClient parses a redis URL ("redis://host:port/db") and connects.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Client{rdb: goredis.NewClient(opts)}, nil
}

// Ping satisfies the readiness check's pinger.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Debouncer returns a submission debouncer over this connection with the
// given duplicate window.
func (c *Client) Debouncer(window time.Duration) *Debouncer {
	return &Debouncer{rdb: c.rdb, window: window}
}
