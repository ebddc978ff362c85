package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"skycheck/internal/billing"
	"skycheck/internal/counterstore"
	"skycheck/internal/types"
	"skycheck/internal/usage"
)

func testUsage(limit, current int) usage.Context {
	return usage.Context{
		Identifier: "hash",
		PlanID:     types.PlanFree,
		Limit:      limit,
		Current:    current,
		Remaining:  max(0, limit-current),
		Date:       "2026-03-14",
		ResetAt:    time.Now().Add(2 * time.Hour).Unix(),
	}
}

func quotaServer(t *testing.T, ledger QuotaLedger, status int) (*Server, http.Handler) {
	t.Helper()
	s := newTestServer(t)
	s.Ledger = ledger
	h := s.Quota(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == 0 {
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	return s, h
}

func TestQuota_NoLedgerPassesThrough(t *testing.T) {
	_, h := quotaServer(t, nil, http.StatusOK)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather/EGLL", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("no quota headers without a ledger")
	}
}

func TestQuota_AdmittedSuccessConsumes(t *testing.T) {
	ledger := &MockLedger{
		Identity: usage.Identity{Identifier: "1.2.3.4", PlanID: types.PlanFree, Source: types.CallerSourceNetwork},
		Result:   usage.CheckResult{Allowed: true, Usage: testUsage(200, 10)},
	}
	_, h := quotaServer(t, ledger, http.StatusOK)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather/EGLL", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "200" {
		t.Errorf("limit header = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "189" {
		t.Errorf("remaining header = %q, want post-call view 189", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(ledger.Result.Usage.ResetAt, 10) {
		t.Errorf("reset header = %q", got)
	}
	if ledger.IncrementCount() != 1 {
		t.Errorf("expected 1 increment, got %d", ledger.IncrementCount())
	}
}

func TestQuota_AdmittedFailureDoesNotConsume(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			ledger := &MockLedger{Result: usage.CheckResult{Allowed: true, Usage: testUsage(200, 10)}}
			_, h := quotaServer(t, ledger, status)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather/EGLL", nil))

			if rec.Code != status {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("X-RateLimit-Remaining"); got != "190" {
				t.Errorf("remaining header = %q, want pre-call view 190", got)
			}
			if ledger.IncrementCount() != 0 {
				t.Error("non-2xx responses must not consume quota")
			}
		})
	}
}

func TestQuota_ImplicitOK(t *testing.T) {
	ledger := &MockLedger{Result: usage.CheckResult{Allowed: true, Usage: testUsage(200, 0)}}
	_, h := quotaServer(t, ledger, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather/EGLL", nil))

	if rec.Header().Get("X-RateLimit-Remaining") != "199" {
		t.Errorf("remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if ledger.IncrementCount() != 1 {
		t.Error("an empty handler is an implicit 200")
	}
}

func TestQuota_Denied(t *testing.T) {
	u := testUsage(200, 200)
	ledger := &MockLedger{Result: usage.CheckResult{Allowed: false, Usage: u, Message: usage.DenialMessage(200)}}
	called := false
	s := newTestServer(t)
	s.Ledger = ledger
	h := RequestIDMiddleware(s.Quota(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/briefing/EGLL", nil))

	if called {
		t.Error("handler must not run when denied")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != string(types.ErrCodeRateLimit) {
		t.Errorf("code = %q", e.Code)
	}
	if e.Message != "Daily limit of 200 calls reached. Your quota resets at midnight UTC." {
		t.Errorf("message = %q", e.Message)
	}
	if e.RequestID == "" {
		t.Error("request_id missing from envelope")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" || rec.Header().Get("X-RateLimit-Limit") != "200" {
		t.Errorf("unexpected quota headers: %v", rec.Header())
	}
	ra, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || ra < 1 || ra > 2*3600 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if ledger.IncrementCount() != 0 {
		t.Error("denied requests must not consume quota")
	}
}

func TestQuota_SetsCallerInContext(t *testing.T) {
	id := usage.Identity{Identifier: "sk_test", PlanID: types.PlanPro, Source: types.CallerSourceAPIKey}
	ledger := &MockLedger{Identity: id, Result: usage.CheckResult{Allowed: true, Usage: testUsage(10000, 0)}}
	s := newTestServer(t)
	s.Ledger = ledger

	var caller types.Caller
	var ok bool
	s.Quota(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok = types.GetCaller(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("caller not in context")
	}
	if caller.HashedID != usage.HashIdentifier("sk_test") || caller.Plan != types.PlanPro || caller.Source != types.CallerSourceAPIKey {
		t.Errorf("unexpected caller: %+v", caller)
	}
}

func TestQuota_IncrementSurvivesClientCancel(t *testing.T) {
	var incCtxErr error
	ledger := &incrementCtxLedger{MockLedger: MockLedger{Result: usage.CheckResult{Allowed: true, Usage: testUsage(5, 0)}}, seen: &incCtxErr}
	s := newTestServer(t)
	s.Ledger = ledger

	ctx, cancel := context.WithCancel(context.Background())
	h := s.Quota(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		cancel()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	if incCtxErr != nil {
		t.Errorf("increment context should not inherit cancellation, got %v", incCtxErr)
	}
}

type incrementCtxLedger struct {
	MockLedger
	seen *error
}

func (l *incrementCtxLedger) IncrementIdentity(ctx context.Context, id usage.Identity) {
	*l.seen = ctx.Err()
	l.MockLedger.IncrementIdentity(ctx, id)
}

// fixedPlans gives every caller the same small limit.
type fixedPlans struct{ limit int }

func (p fixedPlans) Get(id types.PlanID) billing.Plan {
	return billing.Plan{ID: types.PlanFree, CallsPerDay: p.limit}
}
func (p fixedPlans) All() []billing.Plan { return []billing.Plan{p.Get(types.PlanFree)} }

func TestQuota_WithRealLedger(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := counterstore.NewMemoryWithClock(clock)
	ledger := usage.NewLedger(store, fixedPlans{limit: 3}, billing.NewKeyPlanTable(nil), testLogger(), usage.Options{Clock: clock})

	s := newTestServer(t)
	s.Ledger = ledger
	h := s.Quota(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/weather/EGLL", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 1; i <= 3; i++ {
		rec := call()
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status %d", i, rec.Code)
		}
		if got, want := rec.Header().Get("X-RateLimit-Remaining"), fmt.Sprint(3-i); got != want {
			t.Errorf("call %d: remaining %s, want %s", i, got, want)
		}
	}
	if rec := call(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th call: status %d, want 429", rec.Code)
	}

	now = now.Add(90 * time.Minute) // past UTC midnight
	if rec := call(); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Remaining") != "2" {
		t.Errorf("after rollover: status %d remaining %s", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Unix(1000, 0)
	if got := retryAfterSeconds(1060, now); got != 60 {
		t.Errorf("got %d, want 60", got)
	}
	if got := retryAfterSeconds(900, now); got != 1 {
		t.Errorf("past reset should clamp to 1, got %d", got)
	}
}
