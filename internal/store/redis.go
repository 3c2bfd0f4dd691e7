package store

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// NewRedisClient creates a Redis client with optional password auth and
// waits until it answers a ping.
func NewRedisClient(ctx context.Context, logger *slog.Logger, addr, password string, retries uint64) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	err := withRetry(ctx, logger, "redis", retries, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return rdb, nil
}
