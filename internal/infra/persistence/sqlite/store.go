// Package sqlite persists dataset snapshots to an embedded SQLite file as
// JSON payloads, mirroring the in-memory store semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gridcore/internal/infra/persistence/memory"
	"gridcore/pkg/tabular"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the interface.
var _ tabular.SnapshotStore = (*Store)(nil)

// Store snapshots every dataset write into a single SQLite table while the
// embedded memory store remains authoritative for reads.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the SQLite file and hydrates the in-memory
// state from any persisted snapshots.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "gridcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS datasets (
		slug TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create datasets table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT slug, payload FROM datasets`)
	if err != nil {
		return fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ctx := context.Background()
	for rows.Next() {
		var slug string
		var payload []byte
		if err := rows.Scan(&slug, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var snap tabular.DatasetSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return fmt.Errorf("decode dataset %s: %w", slug, err)
		}
		if err := s.Store.Save(ctx, snap); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Save stores the snapshot in memory, then upserts its JSON payload.
func (s *Store) Save(ctx context.Context, snapshot tabular.DatasetSnapshot) error {
	if err := s.Store.Save(ctx, snapshot); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", snapshot.Slug, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets(slug,payload) VALUES(?,?) ON CONFLICT(slug) DO UPDATE SET payload=excluded.payload`,
		snapshot.Slug, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", snapshot.Slug, err)
	}
	return nil
}

// Delete removes the snapshot from memory and from the table.
func (s *Store) Delete(ctx context.Context, slug string) (bool, error) {
	existed, err := s.Store.Delete(ctx, slug)
	if err != nil {
		return existed, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE slug = ?`, slug); err != nil {
		return existed, fmt.Errorf("delete %s: %w", slug, err)
	}
	return existed, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
