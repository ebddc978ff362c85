package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/core"
	"skycheck/internal/suitability"
	"skycheck/internal/types"
)

// Evaluator is the contract of suitability.Evaluator the handler depends on.
type Evaluator interface {
	Evaluate(s suitability.Snapshot, class types.AircraftClass) (suitability.Decision, error)
	Limits(class types.AircraftClass) (suitability.Limits, bool)
	Policy() suitability.Policy
}

var _ Evaluator = (*suitability.Evaluator)(nil)

// SuitabilityRequest is the body of POST /v1/suitability. Omitted numeric
// fields read as zero; units default to km/h and metres.
type SuitabilityRequest struct {
	Aircraft          string   `json:"aircraft" validate:"required,aircraft_class"`
	WindSpeed         *float64 `json:"wind_speed" validate:"omitempty,gte=0"`
	WindUnit          string   `json:"wind_unit" validate:"omitempty,wind_unit"`
	Visibility        *float64 `json:"visibility" validate:"omitempty,gte=0"`
	VisibilityUnit    string   `json:"visibility_unit" validate:"omitempty,visibility_unit"`
	CloudCoverPercent *float64 `json:"cloud_cover_percent" validate:"omitempty,gte=0,lte=100"`
	CloudBaseFeet     *float64 `json:"cloud_base_feet" validate:"omitempty,gte=0"`
	PrecipitationRate *float64 `json:"precipitation_rate" validate:"omitempty,gte=0"`
}

// Snapshot converts the request into evaluator input.
func (req SuitabilityRequest) Snapshot() (suitability.Snapshot, error) {
	wu, err := suitability.ParseWindUnit(req.WindUnit)
	if err != nil {
		return suitability.Snapshot{}, types.NewAppError(types.ErrCodeValidationInvalidUnit, err.Error(), nil)
	}
	vu, err := suitability.ParseVisibilityUnit(req.VisibilityUnit)
	if err != nil {
		return suitability.Snapshot{}, types.NewAppError(types.ErrCodeValidationInvalidUnit, err.Error(), nil)
	}
	return suitability.Snapshot{
		WindSpeed:         deref(req.WindSpeed),
		WindUnit:          wu,
		Visibility:        deref(req.Visibility),
		VisibilityUnit:    vu,
		CloudCoverPercent: deref(req.CloudCoverPercent),
		CloudBaseFeet:     deref(req.CloudBaseFeet),
		PrecipitationRate: deref(req.PrecipitationRate),
	}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// SuitabilityResponse carries the decision and the snapshot it was made from.
type SuitabilityResponse struct {
	Source   types.WeatherSource  `json:"source"`
	Snapshot suitability.Snapshot `json:"snapshot"`
	Decision suitability.Decision `json:"decision"`
}

// LimitsResponse lists the thresholds in force for one aircraft class.
type LimitsResponse struct {
	AircraftClass     types.AircraftClass `json:"aircraft_class"`
	Limits            suitability.Limits  `json:"limits"`
	PoorMarginalCount int                 `json:"poor_marginal_count"`
}

// SuitabilityHandler evaluates caller-supplied snapshots. Nothing here calls
// upstream, so the routes are not metered.
type SuitabilityHandler struct {
	evaluator Evaluator
	validator *core.Validator
	logger    *slog.Logger
}

// NewSuitabilityHandler creates a SuitabilityHandler.
func NewSuitabilityHandler(ev Evaluator, val *core.Validator, logger *slog.Logger) *SuitabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuitabilityHandler{evaluator: ev, validator: val, logger: logger}
}

// RegisterRoutes mounts the suitability endpoints.
func (h *SuitabilityHandler) RegisterRoutes(r chi.Router, _ func(http.Handler) http.Handler) {
	r.Post("/suitability", h.HandleEvaluate)
	r.Get("/suitability/limits/{aircraft}", h.HandleGetLimits)
}

// HandleEvaluate handles POST /v1/suitability.
func (h *SuitabilityHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req SuitabilityRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Aircraft = strings.ToLower(strings.TrimSpace(req.Aircraft))
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	snap, err := req.Snapshot()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	decision, err := h.evaluator.Evaluate(snap, types.AircraftClass(req.Aircraft))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SuitabilityResponse{
		Source:   types.SourceManual,
		Snapshot: snap,
		Decision: decision,
	}})
}

// HandleGetLimits handles GET /v1/suitability/limits/{aircraft}.
func (h *SuitabilityHandler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	class := types.AircraftClass(strings.ToLower(chi.URLParam(r, "aircraft")))
	limits, ok := h.evaluator.Limits(class)
	if !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAircraft,
			"aircraft must be one of jet, light, microlight", nil,
			map[string]any{"aircraft": string(class)}))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: LimitsResponse{
		AircraftClass:     class,
		Limits:            limits,
		PoorMarginalCount: h.evaluator.Policy().PoorMarginalCount,
	}})
}
