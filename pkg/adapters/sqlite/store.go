// Package sqlite provides SQLite-backed path state persistence.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// Store implements ports.PathStateStore on a SQLite database.
// Each entry is a row, so a snapshot can be inspected with plain SQL.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single connection keeps pragmas and transactions on the same handle.
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save replaces the snapshot stored under key in a single transaction.
func (s *Store) Save(ctx context.Context, key string, entries []domain.PathStateEntry) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM path_states WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (state_key, updated_at) VALUES (?, ?)
		 ON CONFLICT(state_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO path_states (state_key, path_key, position, open, current, alternate_tree)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(state_key, path_key) DO UPDATE SET
		   position = excluded.position, open = excluded.open,
		   current = excluded.current, alternate_tree = excluded.alternate_tree`,
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err = stmt.ExecContext(ctx, key, e.Key, i, e.State.Open, e.State.Current, e.State.AlternateTree); err != nil {
			return fmt.Errorf("inserting path state %q: %w", e.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot stored under key in its saved order.
func (s *Store) Load(ctx context.Context, key string) ([]domain.PathStateEntry, error) {
	var updated int64
	err := s.conn.QueryRowContext(ctx, `SELECT updated_at FROM snapshots WHERE state_key = ?`, key).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT path_key, open, current, alternate_tree FROM path_states
		 WHERE state_key = ? ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("querying path states: %w", err)
	}
	defer rows.Close()

	entries := []domain.PathStateEntry{}
	for rows.Next() {
		var e domain.PathStateEntry
		if err := rows.Scan(&e.Key, &e.State.Open, &e.State.Current, &e.State.AlternateTree); err != nil {
			return nil, fmt.Errorf("scanning path state: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the snapshot and its entries.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// List returns the stored keys.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT state_key FROM snapshots ORDER BY state_key`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning snapshot key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
