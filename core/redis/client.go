package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/m3rciful/formbot/core/logger"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// Client is the subset of Redis commands used by the bot.
type Client struct {
	cli    *goredis.Client
	prefix string
}

// Connect opens a client, verifies connectivity with PING and logs the outcome.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.dialTimeout(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.dialTimeout())
	defer cancel()

	start := time.Now()
	err := c.Ping(pingCtx).Err()
	took := time.Since(start)
	if err != nil {
		_ = c.Close()
		logger.Error(ctx, "redis", "redis.connect",
			slog.String("status", "fail"),
			slog.String("host", cfg.Addr),
			slog.Int("db", cfg.DB),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	logger.Info(ctx, "redis", "redis.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return &Client{cli: c, prefix: cfg.KeyPrefix}, nil
}

// NewFromClient wraps an existing go-redis client. Intended for tests.
func NewFromClient(c *goredis.Client, prefix string) *Client {
	return &Client{cli: c, prefix: prefix}
}

// Key prepends the configured prefix to parts joined with ':'.
func (c *Client) Key(parts ...string) string {
	key := c.prefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

// Set stores value under key. A zero expiration keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, key, value, expiration).Err()
}

// Get returns the string value of key or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.cli.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Del removes keys; missing keys are ignored.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.cli.Del(ctx, keys...).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.cli.Close() }
