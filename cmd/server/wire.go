package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kelpcommercial/kelp-transfers/internal/config"
	"github.com/kelpcommercial/kelp-transfers/internal/limiter"
	"github.com/kelpcommercial/kelp-transfers/internal/storage"
)

func newPresigner(ctx context.Context, cfg *config.Config) (storage.Presigner, error) {
	switch cfg.StorageDriver {
	case config.StorageMinio:
		return storage.NewMinioPresigner(cfg.Storage())
	case config.StorageS3:
		return storage.NewS3Presigner(ctx, cfg.Storage())
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// newLimiter returns the configured limiter and a function releasing its resources.
func newLimiter(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (limiter.Limiter, func(), error) {
	switch cfg.LimiterBackend {
	case config.LimiterOff:
		return limiter.Nop{}, func() {}, nil
	case config.LimiterMemory:
		return limiter.NewMemory(cfg.LimiterWindow, cfg.LimiterMax), func() {}, nil
	case config.LimiterRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return limiter.NewRedis(rdb, "kelp:rl:", cfg.LimiterWindow, cfg.LimiterMax), func() { _ = rdb.Close() }, nil
	case config.LimiterPostgres:
		pg := limiter.NewPG(pool, cfg.LimiterWindow, cfg.LimiterMax)
		go purgeLoop(ctx, pg, cfg.LimiterWindow, log)
		return pg, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown limiter backend %q", cfg.LimiterBackend)
	}
}

// purgeLoop drops stale rate-limit windows until ctx is done.
func purgeLoop(ctx context.Context, pg *limiter.PG, window time.Duration, log *zap.Logger) {
	every := 10 * window
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := pg.Purge(ctx)
			if err != nil {
				log.Warn("purge rate limits", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("purged rate limits", zap.Int64("rows", n))
			}
		}
	}
}
