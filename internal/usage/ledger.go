// Package usage implements the per-caller daily quota ledger.
//
// Counters live in an external CounterStore under
// "<prefix>:<hash(identifier)>:<YYYY-MM-DD>" and expire at the next UTC
// midnight. The ledger fails open: a missing, erroring or slow store admits
// every request and reports the full plan limit.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"skycheck/internal/billing"
	"skycheck/internal/types"
)

const (
	// DefaultKeyPrefix namespaces counter keys.
	DefaultKeyPrefix = "skycheck:usage"
	// DefaultStoreTimeout bounds each store round-trip.
	DefaultStoreTimeout = 750 * time.Millisecond

	dateLayout = "2006-01-02"
)

// Context is the quota state of one caller for one UTC day. It is rebuilt on
// every request.
type Context struct {
	Identifier string       `json:"identifier"`
	PlanID     types.PlanID `json:"plan"`
	Limit      int          `json:"limit"`
	Current    int          `json:"current"`
	Remaining  int          `json:"remaining"`
	Date       string       `json:"date"`
	ResetAt    int64        `json:"reset_at"`
}

// CheckResult is the admit/deny outcome. Message is set only on denial.
type CheckResult struct {
	Allowed bool    `json:"allowed"`
	Usage   Context `json:"usage"`
	Message string  `json:"message,omitempty"`
}

// QuotaHeaders is the caller-facing projection of a Context.
type QuotaHeaders struct {
	Limit     int
	Remaining int
	Reset     int64
}

// Options tunes a Ledger. Zero values select the defaults.
type Options struct {
	KeyPrefix    string
	StoreTimeout time.Duration
	Clock        func() time.Time
	Metrics      Metrics
}

// Ledger decides admission for metered calls and records consumption.
type Ledger struct {
	store   CounterStore
	plans   billing.PlanRegistry
	keys    *billing.KeyPlanTable
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
	now     func() time.Time
	metrics Metrics
}

// NewLedger builds a Ledger. A nil store disables metering (permanent
// fail-open).
func NewLedger(store CounterStore, plans billing.PlanRegistry, keys *billing.KeyPlanTable, logger *slog.Logger, opts Options) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:   store,
		plans:   plans,
		keys:    keys,
		logger:  logger,
		prefix:  opts.KeyPrefix,
		timeout: opts.StoreTimeout,
		now:     opts.Clock,
		metrics: opts.Metrics,
	}
	if l.prefix == "" {
		l.prefix = DefaultKeyPrefix
	}
	if l.timeout <= 0 {
		l.timeout = DefaultStoreTimeout
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.metrics == nil {
		l.metrics = noopMetrics{}
	}
	return l
}

// Enabled reports whether a counter store is configured.
func (l *Ledger) Enabled() bool {
	return l.store != nil
}

// Plans exposes the registry used for limits.
func (l *Ledger) Plans() billing.PlanRegistry {
	return l.plans
}

// Identify resolves the caller. A configured API key selects its plan;
// anything else, unknown keys included, is identified by network address on
// the free plan.
func (l *Ledger) Identify(r *http.Request) Identity {
	if key := extractAPIKey(r); key != "" {
		if plan, ok := l.keys.Lookup(key); ok {
			return Identity{Identifier: key, PlanID: plan, Source: types.CallerSourceAPIKey}
		}
	}
	return Identity{
		Identifier: extractClientIP(r),
		PlanID:     types.PlanFree,
		Source:     types.CallerSourceNetwork,
	}
}

// Check identifies the caller and evaluates today's quota.
func (l *Ledger) Check(ctx context.Context, r *http.Request) CheckResult {
	return l.CheckIdentity(ctx, l.Identify(r))
}

// CheckIdentity evaluates today's quota without consuming it. Store failures
// admit the request with the full limit remaining.
func (l *Ledger) CheckIdentity(ctx context.Context, id Identity) CheckResult {
	now := l.now().UTC()
	plan := l.plans.Get(id.PlanID)
	hash := id.Hash()

	usage := Context{
		Identifier: hash,
		PlanID:     plan.ID,
		Limit:      plan.CallsPerDay,
		Date:       now.Format(dateLayout),
		ResetAt:    nextUTCMidnight(now).Unix(),
	}

	if l.store != nil {
		current, err := l.readCounter(ctx, l.key(hash, usage.Date))
		if err != nil {
			l.metrics.RecordStoreFailure(ctx, "get")
			l.logger.Warn("usage store unavailable, admitting request",
				slog.String("identifier_hash", hash),
				slog.String("error", err.Error()),
			)
		} else {
			usage.Current = current
		}
	}
	usage.Remaining = max(0, usage.Limit-usage.Current)

	result := CheckResult{Allowed: usage.Current < usage.Limit, Usage: usage}
	if !result.Allowed {
		result.Message = DenialMessage(usage.Limit)
	}
	l.metrics.RecordQuotaDecision(ctx, string(plan.ID), result.Allowed)
	return result
}

// Increment records one consumed call for the caller. Errors are logged and
// dropped.
func (l *Ledger) Increment(ctx context.Context, r *http.Request) {
	l.IncrementIdentity(ctx, l.Identify(r))
}

// IncrementIdentity records one consumed call. The first increment of the day
// sets the key to expire at the next UTC midnight.
func (l *Ledger) IncrementIdentity(ctx context.Context, id Identity) {
	if l.store == nil {
		return
	}
	now := l.now().UTC()
	hash := id.Hash()
	key := l.key(hash, now.Format(dateLayout))

	fail := func(op string, err error) {
		l.metrics.RecordStoreFailure(ctx, op)
		l.logger.Warn("usage increment failed",
			slog.String("identifier_hash", hash),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}

	sctx, cancel := context.WithTimeout(ctx, l.timeout)
	_, err := l.store.Incr(sctx, key)
	cancel()
	if err != nil {
		fail("incr", err)
		return
	}

	sctx, cancel = context.WithTimeout(ctx, l.timeout)
	ttl, err := l.store.TTL(sctx, key)
	cancel()
	if err != nil {
		fail("ttl", err)
		return
	}
	if ttl >= 0 {
		return
	}

	sctx, cancel = context.WithTimeout(ctx, l.timeout)
	err = l.store.ExpireAt(sctx, key, nextUTCMidnight(now))
	cancel()
	if err != nil {
		fail("expireat", err)
	}
}

// Headers projects usage into response headers. consumed is 0 for the view
// before the current call and 1 for the view after it.
func Headers(usage Context, consumed int) QuotaHeaders {
	if consumed < 0 {
		consumed = 0
	}
	return QuotaHeaders{
		Limit:     usage.Limit,
		Remaining: max(0, usage.Limit-usage.Current-consumed),
		Reset:     usage.ResetAt,
	}
}

// Apply writes the X-RateLimit-* headers.
func (h QuotaHeaders) Apply(header http.Header) {
	header.Set("X-RateLimit-Limit", strconv.Itoa(h.Limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(h.Remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(h.Reset, 10))
}

// DenialMessage is the user-facing quota message. It names only the limit.
func DenialMessage(limit int) string {
	return fmt.Sprintf("Daily limit of %s calls reached. Your quota resets at midnight UTC.",
		humanize.Comma(int64(limit)))
}

// Key returns the counter key for a hashed identifier on a UTC date.
func (l *Ledger) Key(hash string, date string) string {
	return l.key(hash, date)
}

func (l *Ledger) key(hash, date string) string {
	return l.prefix + ":" + hash + ":" + date
}

func (l *Ledger) readCounter(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseCounter(raw), nil
}

// parseCounter clamps anything that is not a finite non-negative number to 0.
func parseCounter(raw string) int {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		if n > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(n)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// nextUTCMidnight returns 00:00 UTC of the day after t.
func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
