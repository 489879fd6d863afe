// Package ratelimit throttles calls to shared downstream services across all
// fern instances using a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// limiterTimeout bounds every Redis round trip made on behalf of an oracle
// call. A slow Redis must not hold up scoring for longer than this.
const limiterTimeout = 500 * time.Millisecond

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client is the Redis connection shared by the limiters of one process.
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects to Redis and fails when it cannot be reached.
func NewClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "fern-ratelimit",
		DialTimeout:  2 * time.Second,
		ReadTimeout:  limiterTimeout,
		WriteTimeout: limiterTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.addr(), err)
	}

	logger.WithField("redis_db", cfg.DB).Infof("Rate limiter connected to Redis at %s", cfg.addr())

	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis answers. It backs the redis health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
