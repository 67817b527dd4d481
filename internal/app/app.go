// Package app wires configuration into the store and response cache shared
// by the gateway and cachectl binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"playground-gateway/internal/config"
	"playground-gateway/internal/kvstore"
	"playground-gateway/internal/respcache"
)

// OpenStore builds the configured durable store wrapped with logging and
// metrics. The returned close function releases the backend and any Redis
// client it created.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kvstore.Store, func() error, error) {
	var redisClient *redis.Client
	if cfg.Store.Backend == kvstore.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Store.RedisAddr, err)
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Store.RedisAddr))
	}

	store, closer, err := kvstore.New(kvstore.Config{
		Backend:    cfg.Store.Backend,
		Prefix:     cfg.Store.Prefix,
		Dir:        cfg.Store.Dir,
		SQLitePath: cfg.Store.SQLitePath,
	}, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		var errs []error
		if closer != nil {
			errs = append(errs, closer.Close())
		}
		if redisClient != nil {
			errs = append(errs, redisClient.Close())
		}
		return errors.Join(errs...)
	}

	return kvstore.NewLoggingStore(store, cfg.Store.Backend, logger), closeFn, nil
}

// NewResponseCache builds the response cache from cfg.Cache over store.
func NewResponseCache(ctx context.Context, cfg *config.Config, store kvstore.Store, logger *zap.Logger) *respcache.ResponseCache {
	return respcache.New(ctx, store,
		respcache.WithStorageKey(cfg.Cache.StorageKey),
		respcache.WithExpiry(cfg.Cache.Expiry),
		respcache.WithSimilarityThreshold(cfg.Cache.SimilarityThreshold),
		respcache.WithMaxEntries(cfg.Cache.MaxEntries),
		respcache.WithLogger(logger),
	)
}
