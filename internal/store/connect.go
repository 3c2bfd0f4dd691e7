package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// retryBase is the first backoff delay; it doubles on every attempt.
var retryBase = 500 * time.Millisecond

// withRetry runs ping until it succeeds or retries are used up.
func withRetry(ctx context.Context, logger *slog.Logger, name string, retries uint64, ping func(context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.WarnContext(ctx, "dependency not ready", "dependency", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// ConnectPostgres opens a pool and waits until the database answers.
func ConnectPostgres(ctx context.Context, logger *slog.Logger, dsn string, retries uint64) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").Wrap(err)
	}
	if err := withRetry(ctx, logger, "postgres", retries, pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").Wrap(err)
	}
	return pool, nil
}

// ConnectMongo connects a client and waits until the primary answers.
func ConnectMongo(ctx context.Context, logger *slog.Logger, uri string, retries uint64) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("MONGO_CONNECT_FAILED").Wrap(err)
	}
	err = withRetry(ctx, logger, "mongo", retries, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, oops.Code("MONGO_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}
