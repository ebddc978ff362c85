package core

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/usage"
)

// QuotaLedger is the slice of usage.Ledger the Quota middleware needs.
type QuotaLedger interface {
	Identify(r *http.Request) usage.Identity
	CheckIdentity(ctx context.Context, id usage.Identity) usage.CheckResult
	IncrementIdentity(ctx context.Context, id usage.Identity)
}

var _ QuotaLedger = (*usage.Ledger)(nil)

// RouteRegistrar mounts a handler group under /v1. metered wraps routes
// that consume daily quota.
type RouteRegistrar func(r chi.Router, metered func(http.Handler) http.Handler)
