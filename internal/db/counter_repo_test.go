package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skycheck/internal/types"
	"skycheck/internal/usage"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func int64Row(v int64) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = v
		return nil
	}}
}

// --- CounterRepo Tests ---

func TestCounterRepo_Get_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "FROM usage_counters", "expires_at > NOW()")
	}), []any{"skycheck:usage:abc:2026-03-14"}).Return(int64Row(42))

	v, ok, err := repo.Get(context.Background(), "skycheck:usage:abc:2026-03-14")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	db.AssertExpectations(t)
}

func TestCounterRepo_Get_Missing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	v, ok, err := repo.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestCounterRepo_Get_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, _, err := repo.Get(context.Background(), "k")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalStore, appErr.Code)
}

func TestCounterRepo_Incr(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "INSERT INTO usage_counters", "ON CONFLICT (key) DO UPDATE", "RETURNING value")
	}), []any{"k"}).Return(int64Row(3))

	n, err := repo.Incr(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	db.AssertExpectations(t)
}

func TestCounterRepo_Incr_Error(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("deadlock")})

	_, err := repo.Incr(context.Background(), "k")
	assert.Error(t, err)
}

func TestCounterRepo_TTL(t *testing.T) {
	tests := []struct {
		name string
		row  *mockRow
		want int64
	}{
		{"with expiry", int64Row(3600), 3600},
		{"no expiry", int64Row(-1), usage.TTLNoExpiry},
		{"missing", &mockRow{scanErr: pgx.ErrNoRows}, usage.TTLMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewCounterRepo(db)
			db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"k"}).Return(tt.row)

			got, err := repo.TTL(context.Background(), "k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounterRepo_ExpireAt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	at := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "UPDATE usage_counters SET expires_at")
	}), []any{"k", at}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.ExpireAt(context.Background(), "k", at))
	db.AssertExpectations(t)
}

func TestCounterRepo_DeleteExpired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	now := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{now}).
		Return(pgconn.NewCommandTag("DELETE 12"), nil)

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestCounterRepo_EnsureSchemaAndPing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("Exec", mock.Anything, CounterSchema, mock.Anything).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)
	db.On("QueryRow", mock.Anything, "SELECT 1", mock.Anything).Return(&mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = 1
		return nil
	}})

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, repo.Ping(context.Background()))
	db.AssertExpectations(t)
}

func TestCounterRepo_PingFailure(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCounterRepo(db)

	db.On("QueryRow", mock.Anything, "SELECT 1", mock.Anything).Return(&mockRow{scanErr: errors.New("refused")})

	assert.Error(t, repo.Ping(context.Background()))
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
