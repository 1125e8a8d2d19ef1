// Package store persists tables with optimistic concurrency control.
//
// Every stored table carries a version. Save and Delete only succeed when the
// caller's version matches the stored one; otherwise they fail with
// ErrVersionConflict and the caller must reload and retry (or give up).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lox/holdemtables/internal/game"
)

var (
	ErrNotFound        = errors.New("table not found")
	ErrAlreadyExists   = errors.New("table already exists")
	ErrVersionConflict = errors.New("table version conflict")
)

// Store is a versioned table repository.
type Store interface {
	// Create inserts a new table at version 1.
	Create(ctx context.Context, t *game.Table) error
	// Load returns an independent copy of the stored table.
	Load(ctx context.Context, id string) (*game.Table, error)
	// Save writes t if the stored version still equals t.Version, then
	// increments t.Version.
	Save(ctx context.Context, t *game.Table) error
	// Delete removes the table if the stored version equals version.
	Delete(ctx context.Context, id string, version int64) error
	// List returns every stored table ordered by id.
	List(ctx context.Context) ([]*game.Table, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. dsn is a directory for file, a file path
// for sqlite and a connection string for postgres. It is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory, "mem":
		return NewMemory(), nil
	case DriverFile:
		return OpenFile(strings.TrimSpace(dsn))
	case DriverSQLite, "sqlite3":
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "postgresql":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q (supported: %s, %s, %s, %s)", driver, DriverMemory, DriverFile, DriverSQLite, DriverPostgres)
	}
}

func encode(t *game.Table) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding table %s: %w", t.ID, err)
	}
	return b, nil
}

func decode(b []byte, version int64) (*game.Table, error) {
	var t game.Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	t.Version = version
	return &t, nil
}
