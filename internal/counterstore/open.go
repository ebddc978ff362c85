package counterstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"skycheck/internal/config"
	"skycheck/internal/db"
	"skycheck/internal/usage"
)

// Backend names accepted in USAGE_STORE.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Store is a usage.CounterStore that can report liveness and release its
// connections.
type Store interface {
	usage.CounterStore
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores whose expired keys must be removed
// explicitly.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// postgresStore owns the pool behind a db.CounterRepo.
type postgresStore struct {
	*db.CounterRepo
	pool *pgxpool.Pool
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}

// Open builds the store selected by cfg.Backend. It returns (nil, nil) for
// "none": the ledger then runs permanently fail-open.
func Open(ctx context.Context, cfg config.UsageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		logger.Warn("usage store disabled; quotas are not enforced")
		return nil, nil

	case BackendMemory:
		logger.Info("usage store: in-process memory")
		return NewMemory(), nil

	case BackendRedis:
		s, err := NewRedis(cfg.RedisURL.Unmask())
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			// Not fatal: the ledger fails open until Redis is reachable.
			logger.Warn("redis not reachable at startup", "error", err.Error())
		}
		logger.Info("usage store: redis")
		return s, nil

	case BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("parsing database url: %w", err)
		}
		poolCfg.MaxConns = cfg.DBMaxConns
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		repo := db.NewCounterRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("usage store: postgres", "max_conns", cfg.DBMaxConns)
		return &postgresStore{CounterRepo: repo, pool: pool}, nil

	case BackendSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("usage store: sqlite", "path", cfg.SQLitePath)
		return s, nil
	}
	return nil, fmt.Errorf("unknown usage store backend %q", cfg.Backend)
}

// RunSweeper deletes expired counters every interval until ctx is done.
// Stores that are not Sweepers are ignored.
func RunSweeper(ctx context.Context, store usage.CounterStore, interval time.Duration, logger *slog.Logger) {
	sw, ok := store.(Sweeper)
	if !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sw.DeleteExpired(ctx, now.UTC())
			if err != nil {
				logger.Warn("usage counter sweep failed", "error", err.Error())
				continue
			}
			if n > 0 {
				logger.Info("usage counters swept", "deleted", n)
			}
		}
	}
}
