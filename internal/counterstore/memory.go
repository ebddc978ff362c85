// Package counterstore provides the usage.CounterStore backends: an
// in-process map, Redis, SQLite and (via internal/db) PostgreSQL.
package counterstore

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"skycheck/internal/usage"
)

type memEntry struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

// Memory is a mutex-guarded in-process counter store. Counters are lost on
// restart and are not shared between instances.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

var _ usage.CounterStore = (*Memory)(nil)

// NewMemory returns an empty store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an empty store that evaluates expiry against now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]*memEntry), now: now}
}

// live returns the entry for key, evicting it when expired. Caller holds mu.
func (m *Memory) live(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return "", false, nil
	}
	return strconv.FormatInt(e.value, 10), true, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		e = &memEntry{}
		m.entries[key] = e
	}
	if e.value < math.MaxInt64 {
		e.value++
	}
	return e.value, nil
}

func (m *Memory) TTL(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	switch {
	case e == nil:
		return usage.TTLMissing, nil
	case e.expiresAt.IsZero():
		return usage.TTLNoExpiry, nil
	}
	return int64(math.Ceil(e.expiresAt.Sub(m.now()).Seconds())), nil
}

func (m *Memory) ExpireAt(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(key); e != nil {
		e.expiresAt = at
	}
	return nil
}

// DeleteExpired drops every expired entry and returns how many were removed.
func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
