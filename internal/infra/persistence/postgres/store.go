// Package postgres provides a Postgres-backed snapshot store that mirrors the
// in-memory semantics, persisting dataset payloads as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"gridcore/internal/infra/persistence/memory"
	"gridcore/pkg/tabular"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the interface.
var _ tabular.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/gridcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists dataset snapshots to Postgres while reusing the in-memory
// implementation for reads.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the datasets table exists, and hydrates the
// in-memory store from any existing rows.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureDatasetsTable(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func ensureDatasetsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS datasets (
		slug TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure datasets table: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, payload FROM datasets`)
	if err != nil {
		return fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var slug string
		var payload []byte
		if err := rows.Scan(&slug, &payload); err != nil {
			return fmt.Errorf("scan datasets: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var snap tabular.DatasetSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return fmt.Errorf("decode %s: %w", slug, err)
		}
		if err := s.Store.Save(ctx, snap); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate datasets: %w", err)
	}
	return nil
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
		`INSERT INTO datasets(slug,payload) VALUES($1,$2) ON CONFLICT(slug) DO UPDATE SET payload=EXCLUDED.payload`,
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE slug = $1`, slug); err != nil {
		return existed, fmt.Errorf("delete %s: %w", slug, err)
	}
	return existed, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
