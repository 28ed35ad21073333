// Package infra connects to the shared backends a node runs on and prepares
// their schema.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Retry controls how often a backend is dialled before startup gives up.
type Retry struct {
	Attempts int
	Wait     time.Duration
}

// DefaultRetry waits up to roughly half a minute for a backend to come up.
var DefaultRetry = Retry{Attempts: 10, Wait: 3 * time.Second}

func (r Retry) do(ctx context.Context, logger *slog.Logger, backend string, dial func(context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = dial(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("backend not ready", slog.String("backend", backend), slog.Int("attempt", i), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Wait):
		}
	}
	return fmt.Errorf("%s unavailable after %d attempts: %w", backend, attempts, err)
}

// NewPostgresPool configures a PostgreSQL connection pool and waits until it answers.
func NewPostgresPool(ctx context.Context, url string, retry Retry, logger *slog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := retry.do(ctx, logger, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewRedisClient configures a Redis client and waits until it answers.
func NewRedisClient(ctx context.Context, url string, retry Retry, logger *slog.Logger) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.do(ctx, logger, "redis", ping); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
