package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lox/holdemtables/internal/game"
)

// sqlStore implements Store on database/sql. The SQLite and Postgres stores
// differ only in how the connection is opened and in placeholder syntax.
type sqlStore struct {
	db       *sql.DB
	numbered bool // $1 placeholders instead of ?
}

const createTablesSchema = `
CREATE TABLE IF NOT EXISTS poker_tables (
    id            TEXT PRIMARY KEY,
    version       BIGINT NOT NULL,
    state         TEXT NOT NULL,
    updated_at_ms BIGINT NOT NULL
)`

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTablesSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for drivers that need numbered ones.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Create(ctx context.Context, t *game.Table) error {
	state, err := encode(withVersion(t, 1))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO poker_tables (id, version, state, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`), t.ID, 1, string(state), nowMs())
	if err != nil {
		return fmt.Errorf("creating table %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, t.ID)
	}
	t.Version = 1
	return nil
}

func (s *sqlStore) Load(ctx context.Context, id string) (*game.Table, error) {
	var (
		version int64
		state   string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT version, state FROM poker_tables WHERE id = ?`), id).Scan(&version, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", id, err)
	}
	return decode([]byte(state), version)
}

func (s *sqlStore) Save(ctx context.Context, t *game.Table) error {
	next := t.Version + 1
	state, err := encode(withVersion(t, next))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
UPDATE poker_tables
SET version = ?, state = ?, updated_at_ms = ?
WHERE id = ? AND version = ?`), next, string(state), nowMs(), t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("saving table %s: %w", t.ID, err)
	}
	if err := s.checkSwapped(ctx, res, t.ID, t.Version); err != nil {
		return err
	}
	t.Version = next
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, id string, version int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM poker_tables WHERE id = ? AND version = ?`), id, version)
	if err != nil {
		return fmt.Errorf("deleting table %s: %w", id, err)
	}
	return s.checkSwapped(ctx, res, id, version)
}

// checkSwapped turns a compare-and-swap that touched no rows into
// ErrNotFound or ErrVersionConflict.
func (s *sqlStore) checkSwapped(ctx context.Context, res sql.Result, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current int64
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT version FROM poker_tables WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, id, current, version)
}

func (s *sqlStore) List(ctx context.Context) ([]*game.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, state FROM poker_tables ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var out []*game.Table
	for rows.Next() {
		var (
			version int64
			state   string
		)
		if err := rows.Scan(&version, &state); err != nil {
			return nil, err
		}
		t, err := decode([]byte(state), version)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func withVersion(t *game.Table, version int64) *game.Table {
	c := *t
	c.Version = version
	return &c
}

func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}
