// Package backend opens the storage backend selected in configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledger-aggregates/internal/config"
	"ledger-aggregates/internal/storage"
	"ledger-aggregates/internal/storage/clickhouse"
	"ledger-aggregates/internal/storage/memory"
	"ledger-aggregates/internal/storage/migrations"
	"ledger-aggregates/internal/storage/postgres"
	"ledger-aggregates/internal/storage/sqlite"
)

// Open connects to cfg.StoreBackend, applies its migrations and returns its stores.
// The returned cleanup releases the connection and is safe to call once.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Stores, func(), error) {
	if err := cfg.Validate(); err != nil {
		return storage.Stores{}, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("using in-memory storage")
		return memory.NewStores(), func() {}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return storage.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("using postgres storage")
		return postgres.NewStores(pool), pool.Close, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return storage.Stores{}, nil, err
		}
		logger.Info("using sqlite storage", zap.String("path", cfg.SQLitePath))
		return sqlite.NewStores(db), func() { _ = db.Close() }, nil

	case config.BackendClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return storage.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Info("using clickhouse storage")
		return clickhouse.NewStores(conn), func() { _ = conn.Close() }, nil
	}

	return storage.Stores{}, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
