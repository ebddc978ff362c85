package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"skycheck/internal/types"
)

// noopSleep skips retry waits.
func noopSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestClient(t *testing.T, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	t.Helper()
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-breaker", policy, "SkyCheck-Test/1.0", opts...)
}

func newGet(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return req
}

func appCode(err error) types.ErrorCode {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())
	resp, err := client.Do(newGet(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestDo_InjectsRequestIDAndUserAgent(t *testing.T) {
	var gotID, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())
	ctx := types.WithRequestID(context.Background(), "req-123")
	resp, err := client.Do(newGet(t, ctx, server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotID != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", gotID)
	}
	if gotUA != "SkyCheck-Test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestDo_NoRequestIDWhenNotInContext(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Request-Id"]
	}))
	defer server.Close()

	resp, err := newTestClient(t, DefaultRetryPolicy()).Do(newGet(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if present {
		t.Error("X-Request-ID should not be set without a request ID in context")
	}
}

func TestDo_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient(t, DefaultRetryPolicy()).Do(newGet(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   types.ErrorCode
	}{
		{"server error", http.StatusBadGateway, types.ErrCodeUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			policy := RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond}
			_, err := newTestClient(t, policy).Do(newGet(t, context.Background(), server.URL))
			if code := appCode(err); code != tt.want {
				t.Errorf("code = %q, want %q (err %v)", code, tt.want, err)
			}
			if calls.Load() != 3 {
				t.Errorf("expected 3 attempts, got %d", calls.Load())
			}
		})
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	resp, err := newTestClient(t, DefaultRetryPolicy()).Do(newGet(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("4xx should be returned to the caller, got: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d, want 400 and 1", resp.StatusCode, calls.Load())
	}
}

func TestDo_RespectsRetryAfter(t *testing.T) {
	var waits []time.Duration
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	}))
	defer server.Close()

	record := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	policy := RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 10 * time.Second}
	resp, err := newTestClient(t, policy, WithSleepFunc(record)).Do(newGet(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if len(waits) != 1 || waits[0] != 2*time.Second {
		t.Errorf("waits = %v, want [2s]", waits)
	}
}

func TestDo_RetryAfterCappedByMaxWait(t *testing.T) {
	c := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Second})
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}
	if got := c.computeBackoff(0, resp); got != time.Second {
		t.Errorf("backoff = %v, want 1s", got)
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := newTestClient(t, DefaultRetryPolicy(), WithSleepFunc(cancelling)).Do(newGet(t, ctx, server.URL))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls.Load())
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "trip-fast",
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	client := newTestClient(t, RetryPolicy{MaxRetries: 0}, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, _ = client.Do(newGet(t, context.Background(), server.URL))
	}
	_, err := client.Do(newGet(t, context.Background(), server.URL))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open breaker, got %v", err)
	}
	if code := appCode(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q", code)
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker should short-circuit; server saw %d calls", calls.Load())
	}
}

func TestDo_NetworkErrorMapsToAppError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, RetryPolicy{MaxRetries: 0}).Do(newGet(t, context.Background(), url))
	if code := appCode(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q, want upstream_unavailable", code)
	}
}

func TestGetJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Write([]byte(`{"name":"EGLL"}`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())
	ctx := context.Background()

	var dest struct{ Name string }
	if err := client.GetJSON(ctx, server.URL+"/ok", &dest); err != nil || dest.Name != "EGLL" {
		t.Errorf("ok: err=%v name=%q", err, dest.Name)
	}
	if err := client.GetJSON(ctx, server.URL+"/missing", &dest); !errors.Is(err, errNotFound) {
		t.Errorf("missing: expected errNotFound, got %v", err)
	}
	if err := client.GetJSON(ctx, server.URL+"/empty", &dest); !errors.Is(err, errNotFound) {
		t.Errorf("empty: expected errNotFound, got %v", err)
	}
	if err := client.GetJSON(ctx, server.URL+"/garbage", &dest); appCode(err) != types.ErrCodeUpstreamUnavailable {
		t.Errorf("garbage: expected upstream_unavailable, got %v", err)
	}
	if err := client.GetJSON(ctx, server.URL+"/forbidden", &dest); appCode(err) != types.ErrCodeUpstreamUnavailable {
		t.Errorf("forbidden: expected upstream_unavailable, got %v", err)
	}
}

func TestComputeBackoff_Bounds(t *testing.T) {
	c := newTestClient(t, RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second})
	for attempt := 0; attempt < 6; attempt++ {
		d := c.computeBackoff(attempt, nil)
		if d < 100*time.Millisecond || d > time.Second {
			t.Errorf("attempt %d: backoff %v outside [100ms, 1s]", attempt, d)
		}
	}
}
