package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/plexaddons/dashboard-auth/crypto"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`

// SQLite is the durable store. It survives dashboard restarts the way
// browser local storage survives page reloads. When a sealer is provided,
// values are encrypted before they hit disk.
type SQLite struct {
	sqlDB  *sql.DB
	sealer *crypto.Sealer
}

// OpenSQLite opens (or creates) the store at path. sealer may be nil, in
// which case values are stored plaintext.
func OpenSQLite(path string, sealer *crypto.Sealer) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	// modernc.org/sqlite only applies pragmas passed via _pragma=.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB, sealer: sealer}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read key %q: %w", key, err)
	}
	return s.unseal(value)
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	stored, err := s.seal(value)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, stored)
	if err != nil {
		return fmt.Errorf("write key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete key %q: %w", key, err)
	}
	return nil
}

// Take reads and deletes inside a single transaction so the value is
// observable at most once.
func (s *SQLite) Take(ctx context.Context, key string) (string, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin take: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var value string
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read key %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return "", fmt.Errorf("delete key %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit take: %w", err)
	}
	return s.unseal(value)
}

func (s *SQLite) seal(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return "", fmt.Errorf("seal value: %w", err)
	}
	return sealed, nil
}

func (s *SQLite) unseal(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	opened, err := s.sealer.Open(value)
	if err != nil {
		return "", fmt.Errorf("unseal value: %w", err)
	}
	return opened, nil
}
