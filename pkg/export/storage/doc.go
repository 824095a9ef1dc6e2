// Package storage persists export profiles and export processes.
//
// Two backends are provided: SQLiteStorage, usable with either the cgo
// driver (mattn/go-sqlite3, "sqlite3") or the pure-Go driver
// (modernc.org/sqlite, "sqlite"), and MemoryStorage for tests and
// single-shot CLI runs.
//
// Both backends enforce at most one default profile per scope. SQLite
// additionally backs the rule with a partial unique index. Process status
// changes are compare-and-set on the current status, so a repeated or
// racing transition returns export.ErrConflict instead of overwriting.
package storage

import (
	"fmt"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

// Storage is the combined profile and process store.
type Storage interface {
	export.ProfileStore
	export.ProcessStore
	Close() error
}

// New creates the backend selected by cfg.Backend.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStorage(cfg.SQLite)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
