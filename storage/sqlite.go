package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/flowmesh/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// SQLiteProvider is a StorageProvider backed by a single-file SQLite
// database. The pure-Go driver keeps the build cgo-free.
type SQLiteProvider struct {
	db *sql.DB
}

var _ core.StorageProvider = (*SQLiteProvider)(nil)

// NewSQLiteProvider opens or creates the database at path and prepares the
// key-value schema. The parent directory is created when missing.
func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}

	return &SQLiteProvider{db: db}, nil
}

// Get returns the value stored under key.
func (p *SQLiteProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, overwriting any previous value.
func (p *SQLiteProvider) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO kv(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting an unknown key is not an error.
func (p *SQLiteProvider) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

// List returns the sorted keys beginning with prefix.
func (p *SQLiteProvider) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key",
		prefix, prefix+"\xff",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite list %s: %w", prefix, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close releases the underlying database handle.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}
