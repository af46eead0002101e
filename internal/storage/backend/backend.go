// Package backend opens the configured result table store.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"strategy-sweep-lab/internal/storage"
	chstore "strategy-sweep-lab/internal/storage/clickhouse"
	"strategy-sweep-lab/internal/storage/memory"
	"strategy-sweep-lab/internal/storage/migrations"
	"strategy-sweep-lab/internal/storage/postgres"
	"strategy-sweep-lab/internal/storage/xlsx"
)

// Kinds of result table store.
const (
	XLSX       = "xlsx"
	Postgres   = "postgres"
	ClickHouse = "clickhouse"
	Memory     = "memory"
)

// Config selects and locates a backend.
type Config struct {
	Kind          string
	Dir           string // workbook directory
	PostgresDSN   string
	ClickhouseDSN string
	Logger        zerolog.Logger
}

// Open returns a store for namespace, applying migrations for database backends.
func Open(ctx context.Context, cfg Config, namespace string) (storage.ResultTableStore, error) {
	switch cfg.Kind {
	case XLSX, "":
		return xlsx.NewResultTableStore(xlsx.Options{
			Path:   xlsx.PathFor(cfg.Dir, namespace),
			Logger: cfg.Logger.With().Str("store", "xlsx").Logger(),
		}), nil

	case Postgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewResultTableStore(pool, namespace), nil

	case ClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		return chstore.NewResultTableStore(conn, namespace), nil

	case Memory:
		return memory.NewResultTableStore(), nil
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", storage.ErrInvalidInput, cfg.Kind)
}

// Describe returns a human-readable location of the store.
func Describe(cfg Config, namespace string) string {
	switch cfg.Kind {
	case XLSX, "":
		return xlsx.PathFor(cfg.Dir, namespace)
	case Postgres:
		return "postgres namespace " + namespace
	case ClickHouse:
		return "clickhouse namespace " + namespace
	}
	return cfg.Kind + " namespace " + namespace
}
