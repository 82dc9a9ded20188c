// Package ratelimit keeps outbound API calls under a shared per-key quota.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript admits a request when fewer than ARGV[3] requests were
// admitted in the trailing window. It returns 1 when admitted, otherwise the
// negated milliseconds until the oldest entry leaves the window.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// SlidingWindowLimiter is a Redis sliding-window limiter shared by every
// process that talks to the same Redis, so API and worker draw from one quota.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	rate   int
	window time.Duration
	prefix string
}

// NewSlidingWindowLimiter allows requestsPerSecond per key. A nil client or a
// non-positive rate disables limiting.
func NewSlidingWindowLimiter(redisClient *redis.Client, requestsPerSecond int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  redisClient,
		rate:   requestsPerSecond,
		window: time.Second,
		prefix: "ratelimit:",
	}
}

// Allow reports whether a request may go now, and otherwise how long to wait.
// Redis errors fail open.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.redis == nil || l.rate <= 0 {
		return true, 0
	}

	now := time.Now()
	result, err := slidingWindowScript.Run(ctx, l.redis, []string{l.prefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.rate,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return true, 0
	}

	switch {
	case result == 1:
		return true, 0
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond
	default:
		return false, l.window
	}
}

// Wait blocks until key may make a request or ctx ends.
func (l *SlidingWindowLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, wait := l.Allow(ctx, key)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait for %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
