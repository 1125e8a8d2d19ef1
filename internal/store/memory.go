package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lox/holdemtables/internal/game"
)

// Memory keeps encoded tables in a map. Tables are stored serialized so that
// callers never share state with the store.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]record
}

type record struct {
	version int64
	state   []byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]record)}
}

func (m *Memory) Create(_ context.Context, t *game.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, t.ID)
	}
	t.Version = 1
	b, err := encode(t)
	if err != nil {
		return err
	}
	m.tables[t.ID] = record{version: t.Version, state: b}
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (*game.Table, error) {
	m.mu.RLock()
	rec, ok := m.tables[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(rec.state, rec.version)
}

func (m *Memory) Save(_ context.Context, t *game.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	if rec.version != t.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, t.ID, rec.version, t.Version)
	}

	next := *t
	next.Version++
	b, err := encode(&next)
	if err != nil {
		return err
	}
	m.tables[t.ID] = record{version: next.Version, state: b}
	t.Version = next.Version
	return nil
}

func (m *Memory) Delete(_ context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.version != version {
		return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, id, rec.version, version)
	}
	delete(m.tables, id)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*game.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*game.Table, 0, len(m.tables))
	for _, rec := range m.tables {
		t, err := decode(rec.state, rec.version)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *game.Table) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
