package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const minRetryDelay = 10 * time.Millisecond

// Result contains the result of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int64
	RetryIn   time.Duration
}

var slidingWindow = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)
	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	end

	local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
	if #oldest > 0 then
		return {0, 0, oldest[2]}
	end
	return {0, 0, 0}
`)

// Limiter allows at most Limit calls per Window for one key.
type Limiter struct {
	client *Client
	key    string
	limit  int64
	window time.Duration
}

// NewLimiter creates a limiter for key. The key is prefixed with "ratelimit:".
func NewLimiter(client *Client, key string, limit int64, window time.Duration) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	return &Limiter{
		client: client,
		key:    "ratelimit:" + key,
		limit:  limit,
		window: window,
	}, nil
}

// Allow records a call if the window has room.
func (l *Limiter) Allow(ctx context.Context) (*Result, error) {
	now := time.Now()

	raw, err := slidingWindow.Run(ctx, l.client.rdb, []string{l.key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}

	return parseResult(raw, now, l.window)
}

// Wait blocks until a call is allowed or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		res, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if res.Allowed {
			return nil
		}

		timer := time.NewTimer(max(res.RetryIn, minRetryDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func parseResult(raw []any, now time.Time, window time.Duration) (*Result, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", raw)
	}

	allowedFlag, err := toInt64(raw[0])
	if err != nil {
		return nil, err
	}
	remaining, err := toInt64(raw[1])
	if err != nil {
		return nil, err
	}

	res := &Result{Allowed: allowedFlag == 1, Remaining: remaining}
	if !res.Allowed && len(raw) > 2 {
		oldestMs, err := toInt64(raw[2])
		if err != nil {
			return nil, err
		}
		if oldestMs > 0 {
			res.RetryIn = time.UnixMilli(oldestMs).Add(window).Sub(now)
		}
	}
	return res, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		// zrange WITHSCORES comes back as a string
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, err
			}
			return int64(f), nil
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
