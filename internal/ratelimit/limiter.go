// Package ratelimit limits how often a client may hit an HTTP route, counting
// requests in Redis so the limit holds across server instances.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	log       *slog.Logger
}

// NewLimiter returns a Limiter allowing limit requests per window for each
// key. A nil client disables limiting.
func NewLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration, log *slog.Logger) *Limiter {
	return &Limiter{client: client, keyPrefix: keyPrefix, limit: limit, window: window, log: log}
}

// Enabled reports whether requests are actually counted.
func (l *Limiter) Enabled() bool {
	return l.client != nil && l.limit > 0 && l.window > 0
}

// Allow counts one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
	}

	redisKey := l.keyPrefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit %s: %w", redisKey, err)
	}

	retryAfter := ttl.Val()
	if retryAfter < 0 {
		// First hit of a window, or a key that lost its expiry.
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("redis rate limit expire %s: %w", redisKey, err)
		}
		retryAfter = l.window
	}

	count := int(incr.Val())
	res := Result{Allowed: count <= l.limit, Limit: l.limit, Remaining: max(l.limit-count, 0)}
	if !res.Allowed {
		res.RetryAfter = retryAfter
	}
	return res, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.keyPrefix+key).Err()
}

// NewClient builds a Redis client from either a redis:// URL or a bare
// host:port address and checks that it answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		parsed.DialTimeout, parsed.ReadTimeout, parsed.WriteTimeout = opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
