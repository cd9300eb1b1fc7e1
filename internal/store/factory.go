package store

import (
	"context"
	"fmt"

	"order_lifecycle/internal/config"
	"order_lifecycle/internal/core"
)

// New creates the configured KeyedStore backend
func New(ctx context.Context, cfg config.StoreConfig, logger core.ILogger) (core.IKeyedStore, error) {
	switch cfg.Backend {
	case "memory":
		logger.Warn("Using in-memory store; claims do not survive restarts or span workers")
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
