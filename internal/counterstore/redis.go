package counterstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skycheck/internal/usage"
)

// redisCmdable is the subset of *redis.Client used by Redis.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis stores counters with native GET/INCR/TTL/EXPIREAT.
type Redis struct {
	client redisCmdable
	close  func() error
}

var _ usage.CounterStore = (*Redis)(nil)

// NewRedis connects to the server described by a redis:// or rediss:// URL.
// The connection is lazy; call Ping to verify reachability.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &Redis{client: client, close: client.Close}, nil
}

// newRedisWithClient wraps an existing command surface; used by tests.
func newRedisWithClient(client redisCmdable) *Redis {
	return &Redis{client: client, close: func() error { return nil }}
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET: %w", err)
	}
	return v, true, nil
}

func (s *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR: %w", err)
	}
	return n, nil
}

// TTL maps go-redis' raw -1/-2 replies onto the usage sentinels.
func (s *Redis) TTL(ctx context.Context, key string) (int64, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis TTL: %w", err)
	}
	switch d {
	case -1:
		return usage.TTLNoExpiry, nil
	case -2:
		return usage.TTLMissing, nil
	}
	return int64(d / time.Second), nil
}

func (s *Redis) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if err := s.client.ExpireAt(ctx, key, at).Err(); err != nil {
		return fmt.Errorf("redis EXPIREAT: %w", err)
	}
	return nil
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis PING: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.close()
}
