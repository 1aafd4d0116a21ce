package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/notify"
)

// Bootstrap opens the database and Redis described by cfg and returns an
// AppContext publishing notifications on cfg.Redis.Channel. The returned close
// func flushes pending notifications and releases both connections.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppContext, func(), error) {
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init db: %w", err)
	}

	redisCache := cache.NewRedisCache(cfg.Redis)
	if err := redisCache.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	publisher := notify.NewRedisPublisher(redisCache.Client, cfg.Redis.Channel, logger)
	appCtx := New(database, redisCache, logger, WithConfig(cfg), WithNotifier(publisher))

	closeFn := func() {
		publisher.Wait()
		if err := redisCache.Close(); err != nil {
			logger.Warn("close redis", "err", err)
		}
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return appCtx, closeFn, nil
}
