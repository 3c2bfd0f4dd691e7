// Package ratelimit implements a fixed-window request limiter on Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const keyPrefix = "ratelimit:"

// incrExpirer is the subset of the Redis client the limiter needs.
type incrExpirer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter allows up to limit hits per key in each window.
type RedisLimiter struct {
	rdb    incrExpirer
	limit  int64
	window time.Duration
}

// NewRedisLimiter creates a limiter. rdb is usually a *redis.Client.
func NewRedisLimiter(rdb incrExpirer, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts a hit against key and reports whether it is within the limit.
// The window starts at the first hit. Over the limit the expiry is set again
// with NX, so a counter whose first EXPIRE was lost still resets.
// ExpireNX needs Redis 7.0 or later.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = keyPrefix + key

	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, oops.Code("RATELIMIT_INCR_FAILED").With("key", key).Wrap(err)
	}
	allowed := n <= l.limit
	if n == 1 || !allowed {
		if err := l.rdb.ExpireNX(ctx, key, l.window).Err(); err != nil {
			return false, oops.Code("RATELIMIT_EXPIRE_FAILED").With("key", key).With("count", n).Wrap(err)
		}
	}
	return allowed, nil
}
