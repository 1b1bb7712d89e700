package engine

import (
	"fmt"
	"os"

	"gridcore/internal/infra/persistence/memory"
	"gridcore/internal/infra/persistence/postgres"
	"gridcore/internal/infra/persistence/sqlite"
	"gridcore/pkg/tabular"
)

// StorageDriver identifies a concrete snapshot store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenSnapshotStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	GRIDCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GRIDCORE_SQLITE_PATH: path to sqlite file (default ./gridcore.db)
//	GRIDCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenSnapshotStore() (tabular.SnapshotStore, error) {
	driver := os.Getenv("GRIDCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("GRIDCORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("GRIDCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
