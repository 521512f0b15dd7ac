package core

import (
	"context"
	"fmt"

	"cloudmock/internal/infra/persistence/memory"
	"cloudmock/internal/infra/persistence/postgres"
	"cloudmock/internal/infra/persistence/sqlite"
	"cloudmock/pkg/domain"
)

// StorageDriver identifies a concrete entity store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a backend.
type StorageOptions struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// OpenStore constructs the backend opts names; an empty driver means memory.
func OpenStore(ctx context.Context, opts StorageOptions) (domain.Store, error) {
	switch opts.Driver {
	case "", StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, opts.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}
