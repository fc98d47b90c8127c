package cmd

import (
	"fmt"

	"keyshop-bot/internal/config"
	"keyshop-bot/internal/lock"
	"keyshop-bot/internal/repository"

	"go.uber.org/zap"
)

// openRepository opens the shop repository selected by STORE_TYPE.
func openRepository(cfg config.StoreConfig) (repository.ShopRepository, error) {
	switch cfg.Type {
	case "sqlite":
		return repository.NewSQLiteShopRepository(cfg.Path)
	case "mysql":
		return repository.NewMySQLShopRepository(cfg.MySQLDSN())
	case "postgres", "postgresql":
		return repository.NewPostgresShopRepository(cfg.PostgresDSN())
	case "mongodb", "mongo":
		return repository.NewMongoDBShopRepository(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "json", "":
		return repository.NewJSONShopRepository(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}

// openLocker returns the lock selected by LOCK_TYPE. An unreachable Redis
// falls back to the in-process lock.
func openLocker(cfg config.LockConfig, logger *zap.Logger) lock.Locker {
	if cfg.Type != "redis" {
		return lock.NewMemoryLocker()
	}

	locker, err := lock.NewRedisLocker(lock.RedisConfig{
		Addr:     cfg.RedisAddress(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		logger.Warn("redis_lock_unavailable", zap.String("addr", cfg.RedisAddress()), zap.Error(err))
		return lock.NewMemoryLocker()
	}
	logger.Info("redis_lock_initialized", zap.String("addr", cfg.RedisAddress()))
	return locker
}
