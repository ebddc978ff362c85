package core

import (
	"context"
	"net/http"
	"sync"
	"time"

	"skycheck/internal/usage"
)

// --- MockLedger ---

// MockLedger implements QuotaLedger for tests. It identifies every request
// as Identity and answers CheckIdentity with Result (or CheckFunc).
type MockLedger struct {
	Identity usage.Identity
	Result   usage.CheckResult

	// CheckFunc, when set, overrides Result.
	CheckFunc func(ctx context.Context, id usage.Identity) usage.CheckResult

	mu         sync.Mutex
	Checks     int
	Increments []usage.Identity
}

func (m *MockLedger) Identify(*http.Request) usage.Identity {
	return m.Identity
}

func (m *MockLedger) CheckIdentity(ctx context.Context, id usage.Identity) usage.CheckResult {
	m.mu.Lock()
	m.Checks++
	m.mu.Unlock()
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, id)
	}
	return m.Result
}

func (m *MockLedger) IncrementIdentity(_ context.Context, id usage.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Increments = append(m.Increments, id)
}

// IncrementCount returns the number of recorded increments.
func (m *MockLedger) IncrementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Increments)
}

// --- MockHealthProbe ---

// MockHealthProbe implements HealthProbe with a fixed result and optional
// delay.
type MockHealthProbe struct {
	ProbeName   string
	Err         error
	Delay       time.Duration
	NonCritical bool
	PanicWith   any
}

func (m *MockHealthProbe) Name() string { return m.ProbeName }

func (m *MockHealthProbe) Check(ctx context.Context) error {
	if m.PanicWith != nil {
		panic(m.PanicWith)
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

func (m *MockHealthProbe) Critical() bool { return !m.NonCritical }

// --- MockMetricsCollector ---

// RecordedRequest is one RecordRequest call.
type RecordedRequest struct {
	Method, Endpoint, Status string
	Duration                 time.Duration
}

// MockMetricsCollector records RecordRequest calls.
type MockMetricsCollector struct {
	mu    sync.Mutex
	Calls []RecordedRequest
}

func (m *MockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RecordedRequest{method, endpoint, status, duration})
}

// Snapshot returns a copy of the recorded calls.
func (m *MockMetricsCollector) Snapshot() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.Calls))
	copy(out, m.Calls)
	return out
}
