package usage

import (
	"context"
	"time"
)

// TTL sentinels returned by CounterStore.TTL, matching Redis semantics.
const (
	TTLNoExpiry int64 = -1
	TTLMissing  int64 = -2
)

// CounterStore is the key-value surface the ledger needs. Implementations must
// make Incr atomic; ExpireAt must be idempotent for the same timestamp.
type CounterStore interface {
	// Get returns the raw stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Incr atomically adds one and returns the new value. Missing keys start at 0.
	Incr(ctx context.Context, key string) (int64, error)
	// TTL returns the remaining lifetime in seconds, TTLNoExpiry or TTLMissing.
	TTL(ctx context.Context, key string) (int64, error)
	// ExpireAt schedules the key for deletion at the given instant.
	ExpireAt(ctx context.Context, key string, at time.Time) error
}

// Metrics receives quota outcomes. Implementations must not block.
type Metrics interface {
	RecordQuotaDecision(ctx context.Context, plan string, allowed bool)
	RecordStoreFailure(ctx context.Context, op string)
}

type noopMetrics struct{}

func (noopMetrics) RecordQuotaDecision(context.Context, string, bool) {}
func (noopMetrics) RecordStoreFailure(context.Context, string)        {}
