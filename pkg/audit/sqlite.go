package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docker/admission-core/pkg/sqliteutil"
)

// SQLiteStore is the SQLite-backed Store implementation, opened
// through the same WAL/busy_timeout connection pattern used
// throughout this repo's other persistence layers.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the audit database at
// path and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put upserts value under (namespace, key).
func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("audit: put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get retrieves the value stored under (namespace, key).
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("audit: get %s/%s: %w", namespace, key, err)
	default:
		return value, true, nil
	}
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
