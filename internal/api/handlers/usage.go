package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/billing"
	"skycheck/internal/core"
	"skycheck/internal/usage"
)

// UsageReader reports the caller's quota without consuming it.
type UsageReader interface {
	Identify(r *http.Request) usage.Identity
	CheckIdentity(ctx context.Context, id usage.Identity) usage.CheckResult
}

var _ UsageReader = (*usage.Ledger)(nil)

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Usage   usage.Context `json:"usage"`
	Allowed bool          `json:"allowed"`
	Message string        `json:"message,omitempty"`
}

// UsageHandler exposes the caller's quota and the plan table.
type UsageHandler struct {
	ledger UsageReader
	plans  billing.PlanRegistry
	logger *slog.Logger
}

// NewUsageHandler creates a UsageHandler. A nil ledger leaves /usage
// unmounted.
func NewUsageHandler(ledger UsageReader, plans billing.PlanRegistry, logger *slog.Logger) *UsageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if plans == nil {
		plans = billing.NewStaticPlanRegistry()
	}
	return &UsageHandler{ledger: ledger, plans: plans, logger: logger}
}

// RegisterRoutes mounts the usage and plan endpoints. Neither is metered.
func (h *UsageHandler) RegisterRoutes(r chi.Router, _ func(http.Handler) http.Handler) {
	if h.ledger != nil {
		r.Get("/usage", h.HandleGetUsage)
	}
	r.Get("/plans", h.HandleListPlans)
}

// HandleGetUsage handles GET /v1/usage. The quota headers carry the view
// before any further call.
func (h *UsageHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	id := h.ledger.Identify(r)
	result := h.ledger.CheckIdentity(r.Context(), id)

	usage.Headers(result.Usage, 0).Apply(w.Header())
	w.Header().Set("Cache-Control", "no-store")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: UsageResponse{
		Usage:   result.Usage,
		Allowed: result.Allowed,
		Message: result.Message,
	}})
}

// HandleListPlans handles GET /v1/plans.
func (h *UsageHandler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.plans.All()})
}
