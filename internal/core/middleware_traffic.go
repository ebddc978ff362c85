package core

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"skycheck/internal/types"
	"skycheck/internal/usage"
)

// Quota meters a route against the caller's daily plan limit.
//
// Flow:
//  1. Identify the caller and Check today's usage (never consumes).
//  2. Denied: 429 rate_limit_exceeded with Retry-After and the quota headers
//     as they stand.
//  3. Admitted: run the handler. Quota headers are written at the first
//     WriteHeader, reflecting the call as consumed when the status is 2xx.
//  4. Increment only after a 2xx response.
//
// Store failures never block a request; the ledger fails open. When no
// Ledger is configured the middleware passes through.
func (s *Server) Quota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Ledger == nil {
			next.ServeHTTP(w, r)
			return
		}

		id := s.Ledger.Identify(r)
		ctx := types.WithCaller(r.Context(), id.Caller())
		r = r.WithContext(ctx)

		result := s.Ledger.CheckIdentity(ctx, id)
		if !result.Allowed {
			usage.Headers(result.Usage, 0).Apply(w.Header())
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(result.Usage.ResetAt, time.Now()), 10))

			types.LoggerFromContext(ctx).Warn("daily quota exhausted",
				slog.String("identifier_hash", result.Usage.Identifier),
				slog.String("plan", string(result.Usage.PlanID)),
				slog.Int("limit", result.Usage.Limit),
				slog.String("path", r.URL.Path),
			)

			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeRateLimit, result.Message, nil,
				map[string]any{
					"limit":    result.Usage.Limit,
					"plan":     result.Usage.PlanID,
					"reset_at": result.Usage.ResetAt,
				}))
			return
		}

		qw := &quotaWriter{ResponseWriter: w, usage: result.Usage}
		next.ServeHTTP(qw, r)
		if qw.status == 0 {
			qw.WriteHeader(http.StatusOK)
		}

		if isSuccess(qw.status) {
			// the response is already out; a departing client must not
			// cancel the bookkeeping
			s.Ledger.IncrementIdentity(context.WithoutCancel(ctx), id)
		}
	})
}

// retryAfterSeconds is the wait until reset, at least one second.
func retryAfterSeconds(resetAt int64, now time.Time) int64 {
	return max(1, resetAt-now.Unix())
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// quotaWriter stamps the quota headers just before the status line goes out,
// once the outcome of the handler is known.
type quotaWriter struct {
	http.ResponseWriter
	usage  usage.Context
	status int
}

func (q *quotaWriter) WriteHeader(code int) {
	if q.status == 0 {
		q.status = code
		consumed := 0
		if isSuccess(code) {
			consumed = 1
		}
		usage.Headers(q.usage, consumed).Apply(q.ResponseWriter.Header())
	}
	q.ResponseWriter.WriteHeader(code)
}

func (q *quotaWriter) Write(b []byte) (int, error) {
	if q.status == 0 {
		q.WriteHeader(http.StatusOK)
	}
	return q.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the wrapped writer.
func (q *quotaWriter) Unwrap() http.ResponseWriter {
	return q.ResponseWriter
}
