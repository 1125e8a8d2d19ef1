package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/lox/holdemtables/internal/game"
)

// File keeps one JSON document per table in a directory. Writes replace the
// document atomically, so a crash leaves either the old or the new version.
// Version checks are serialized in-process; the directory must not be shared
// between servers.
type File struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*File)(nil)

type fileRecord struct {
	Version int64           `json:"version"`
	Table   json.RawMessage `json:"table"`
}

// OpenFile uses dir, creating it if needed.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(id string) string {
	return filepath.Join(f.dir, url.PathEscape(id)+".json")
}

func (f *File) read(id string) (fileRecord, error) {
	var rec fileRecord
	b, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decoding %s: %w", id, err)
	}
	return rec, nil
}

func (f *File) write(t *game.Table, version int64) error {
	state, err := encode(t)
	if err != nil {
		return err
	}
	b, err := json.Marshal(fileRecord{Version: version, Table: state})
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path(t.ID), b, 0o644)
}

func (f *File) Create(_ context.Context, t *game.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path(t.ID)); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, t.ID)
	}
	t.Version = 1
	return f.write(t, t.Version)
}

func (f *File) Load(_ context.Context, id string) (*game.Table, error) {
	f.mu.Lock()
	rec, err := f.read(id)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return decode(rec.Table, rec.Version)
}

func (f *File) Save(_ context.Context, t *game.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(t.ID)
	if err != nil {
		return err
	}
	if rec.Version != t.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, t.ID, rec.Version, t.Version)
	}
	if err := f.write(t, t.Version+1); err != nil {
		return err
	}
	t.Version++
	return nil
}

func (f *File) Delete(_ context.Context, id string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(id)
	if err != nil {
		return err
	}
	if rec.Version != version {
		return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, id, rec.Version, version)
	}
	return os.Remove(f.path(id))
}

func (f *File) List(_ context.Context) ([]*game.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	out := make([]*game.Table, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		rec, err := f.read(id)
		if err != nil {
			return nil, err
		}
		t, err := decode(rec.Table, rec.Version)
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

func (f *File) Close() error {
	return nil
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over filename. Readers see the old or the new content, never a
// partial write.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
