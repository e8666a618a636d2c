package core

import (
	"context"
	"fmt"

	"beaconcore/internal/infra/persistence/memory"
	"beaconcore/internal/infra/persistence/postgres"
	"beaconcore/internal/infra/persistence/sqlite"
	"beaconcore/pkg/domain"
)

// StorageDriver identifies a concrete catalog storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenCatalogStore opens the catalog backend named by driver. For sqlite dsn
// is the database path, for postgres the connection string; memory ignores
// it. Every commit is revalidated with checker.
func OpenCatalogStore(ctx context.Context, driver StorageDriver, dsn string, checker domain.BeaconChecker) (domain.CatalogStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(checker), nil
	case "", StorageSQLite:
		return sqlite.NewStore(dsn, checker)
	case StoragePostgres:
		return postgres.NewStore(ctx, dsn, checker)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
