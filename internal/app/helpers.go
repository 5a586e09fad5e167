package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/locationstore"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/repository"
)

var (
	newPool    = repository.NewPool
	migrate    = repository.Migrate
	newRedis   = locationstore.Connect
	retryDelay = time.Second
)

const (
	dbRetries      = 10
	attemptTimeout = 3 * time.Second
)

// connectDbWithRetry retries the initial connect only.
func connectDbWithRetry(ctx context.Context, logger logx.Logger, dsn string, retries int, delay time.Duration) (*pgxpool.Pool, error) {
	var lastErr error
	for i := 1; i <= retries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		pool, err := newPool(attemptCtx, dsn)
		cancel()
		if err == nil {
			logger.Info("db connected", logx.Int("attempt", i))
			return pool, nil
		}
		lastErr = err
		logger.Warn("db connect failed", logx.Int("attempt", i), logx.Int("retries", retries), logx.Err(err))
		if i < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("db connect failed after %d attempts: %w", retries, lastErr)
}

// connectAndMigrate opens the pool and applies the schema.
func connectAndMigrate(ctx context.Context, logger logx.Logger, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := connectDbWithRetry(ctx, logger, cfg.DB.DSN(), dbRetries, retryDelay)
	if err != nil {
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := migrate(migrateCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	pingCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	return newRedis(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}
