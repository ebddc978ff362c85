package counterstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"skycheck/internal/usage"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_counters (
	key        TEXT PRIMARY KEY,
	value      INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER NULL
);
CREATE INDEX IF NOT EXISTS usage_counters_expires_at_idx ON usage_counters (expires_at);`

// SQLite stores counters in a single-file database for single-node
// deployments. expires_at holds unix seconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ usage.CounterStore = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	return openSQLite(ctx, path, time.Now)
}

func openSQLite(ctx context.Context, path string, now func() time.Time) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps INCR serialised and :memory: on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db, now: now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM usage_counters WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite get: %w", err)
	}
	return strconv.FormatInt(value, 10), true, nil
}

func (s *SQLite) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_counters (key, value, expires_at) VALUES (?1, 1, NULL)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE WHEN expires_at IS NOT NULL AND expires_at <= ?2 THEN 1 ELSE value + 1 END,
		   expires_at = CASE WHEN expires_at IS NOT NULL AND expires_at <= ?2 THEN NULL ELSE expires_at END
		 RETURNING value`,
		key, s.now().Unix(),
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sqlite incr: %w", err)
	}
	return value, nil
}

func (s *SQLite) TTL(ctx context.Context, key string) (int64, error) {
	now := s.now().Unix()
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM usage_counters WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, now,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.TTLMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite ttl: %w", err)
	}
	if !expiresAt.Valid {
		return usage.TTLNoExpiry, nil
	}
	return expiresAt.Int64 - now, nil
}

func (s *SQLite) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE usage_counters SET expires_at = ? WHERE key = ?`, at.Unix(), key,
	); err != nil {
		return fmt.Errorf("sqlite expireat: %w", err)
	}
	return nil
}

// DeleteExpired removes rows that expired at or before now.
func (s *SQLite) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_counters WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite delete expired: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
