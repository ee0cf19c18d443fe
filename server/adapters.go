package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nura/config"
	"nura/internal/db"
	"nura/internal/logs"
	"nura/internal/registry"
)

// openStore выбирает бэкенд реестра по store.backend. closer освобождает соединения.
func openStore(cfg *config.Config) (store registry.Store, closer func() error, err error) {
	switch cfg.Store.Backend {
	case "", "memory":
		logs.Logger.Warn("registry store: in-memory, state is lost on restart")
		return registry.NewMemoryStore(), func() error { return nil }, nil

	case "gorm":
		d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open failed: %w", err)
		}
		if err := db.Migrate(d); err != nil {
			return nil, nil, err
		}
		sqlDB, err := d.DB()
		if err != nil {
			return nil, nil, err
		}
		logs.Logger.Infof("registry store: gorm/%s", cfg.Database.Driver)
		return registry.NewGormStore(d), sqlDB.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		logs.Logger.Infof("registry store: redis %s (prefix %q)", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
		return registry.NewRedisStore(client, cfg.Redis.KeyPrefix), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}
}
