package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/sellerwatch/config"
)

// Open builds the backend selected by cfg.StorageType.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageType)) {
	case "", "file":
		return NewFileStore(cfg.DataDir)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		dbPath := cfg.StorageDSN
		if dbPath == "" {
			if _, err := NewFileStore(cfg.DataDir); err != nil {
				return nil, err
			}
			dbPath = filepath.Join(cfg.DataDir, "sellerwatch.db")
		}
		return NewSQLiteStore(dbPath)
	case "mysql":
		return NewMySQLStore(cfg.StorageDSN)
	case "postgres":
		return NewPostgresStore(ctx, cfg.StorageDSN, 4, false)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.RedisAddr,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}
