package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"skycheck/internal/types"
	"skycheck/internal/usage"
)

// CounterSchema creates the usage_counters table. Rows whose expires_at has
// passed are treated as absent and are reset by the next increment.
const CounterSchema = `
CREATE TABLE IF NOT EXISTS usage_counters (
	key        TEXT PRIMARY KEY,
	value      BIGINT NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS usage_counters_expires_at_idx
	ON usage_counters (expires_at) WHERE expires_at IS NOT NULL;`

// CounterRepo implements usage.CounterStore on the usage_counters table.
type CounterRepo struct {
	db DBTX
}

var _ usage.CounterStore = (*CounterRepo)(nil)

// NewCounterRepo creates a new CounterRepo backed by the given database
// connection (pool or transaction).
func NewCounterRepo(db DBTX) *CounterRepo {
	return &CounterRepo{db: db}
}

// EnsureSchema applies CounterSchema.
func (r *CounterRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, CounterSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to create usage_counters table", err)
	}
	return nil
}

// Get returns the live counter value for key.
func (r *CounterRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value int64
	err := r.db.QueryRow(ctx,
		`SELECT value FROM usage_counters
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, types.NewAppError(types.ErrCodeInternalStore, "failed to read usage counter", err)
	}
	return strconv.FormatInt(value, 10), true, nil
}

// Incr atomically increments key. An expired row restarts at 1 with no
// expiry, matching a fresh Redis key.
func (r *CounterRepo) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO usage_counters (key, value, expires_at)
		 VALUES ($1, 1, NULL)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE
		     WHEN usage_counters.expires_at IS NOT NULL AND usage_counters.expires_at <= NOW() THEN 1
		     ELSE usage_counters.value + 1
		   END,
		   expires_at = CASE
		     WHEN usage_counters.expires_at IS NOT NULL AND usage_counters.expires_at <= NOW() THEN NULL
		     ELSE usage_counters.expires_at
		   END
		 RETURNING value`,
		key,
	).Scan(&value)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalStore, "failed to increment usage counter", err)
	}
	return value, nil
}

// TTL returns the seconds until key expires, usage.TTLNoExpiry when no expiry
// is set and usage.TTLMissing when the key is absent or expired.
func (r *CounterRepo) TTL(ctx context.Context, key string) (int64, error) {
	var ttl int64
	err := r.db.QueryRow(ctx,
		`SELECT CASE
		   WHEN expires_at IS NULL THEN -1
		   ELSE CEIL(EXTRACT(EPOCH FROM (expires_at - NOW())))::BIGINT
		 END
		 FROM usage_counters
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		key,
	).Scan(&ttl)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return usage.TTLMissing, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalStore, "failed to read usage counter ttl", err)
	}
	return ttl, nil
}

// ExpireAt sets the expiry of key. Setting the same instant twice is a no-op.
func (r *CounterRepo) ExpireAt(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE usage_counters SET expires_at = $2 WHERE key = $1`,
		key,
		at.UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to set usage counter expiry", err)
	}
	return nil
}

// DeleteExpired removes rows that expired before now and returns the count.
func (r *CounterRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM usage_counters WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalStore, "failed to delete expired usage counters", err)
	}
	return tag.RowsAffected(), nil
}

// Ping runs a trivial query to confirm the database is reachable.
func (r *CounterRepo) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "usage counter database unreachable", err)
	}
	return nil
}
