package core

import (
	"fmt"
	"io"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/internal/infra/persistence/postgres"
	"supplyledger/internal/infra/persistence/sqlite"
	"supplyledger/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a backend. A zero Driver means sqlite.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the store holding one component namespace.
// Durable stores implement io.Closer; use CloseStore to release them.
func OpenPersistentStore(cfg StorageConfig, namespace string, engine *RulesEngine) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, namespace, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, namespace, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// CloseStore releases store resources when the backend holds any.
func CloseStore(store domain.PersistentStore) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
