// Package handlers contains the HTTP handlers for the SkyCheck API.
//
// This file implements the aerodrome weather endpoints:
//   - Aerodrome catalogue (GET /v1/aerodromes, GET /v1/aerodromes/{icao})
//   - Forecast snapshot (GET /v1/weather/{icao})
//   - Latest observation (GET /v1/metar/{icao})
//   - Flight briefing (GET /v1/briefing/{icao}?aircraft=light)
//
// The weather, METAR and briefing routes consume daily quota.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/core"
	"skycheck/internal/types"
	"skycheck/internal/weather"
)

// DefaultAircraftClass is used when a briefing names no aircraft.
const DefaultAircraftClass = types.AircraftLight

// WeatherService is the contract of weather.Service the handler depends on.
type WeatherService interface {
	Aerodromes() []weather.Aerodrome
	Aerodrome(icao string) (weather.Aerodrome, error)
	Forecast(ctx context.Context, icao string) (*weather.ForecastReport, error)
	METAR(ctx context.Context, icao string) (*weather.METARReport, error)
	Briefing(ctx context.Context, icao string, class types.AircraftClass) (*weather.Briefing, error)
}

var _ WeatherService = (*weather.Service)(nil)

// WeatherHandler maps HTTP requests to WeatherService methods.
type WeatherHandler struct {
	service WeatherService
	logger  *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(svc WeatherService, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the weather endpoints. It satisfies
// core.RouteRegistrar.
func (h *WeatherHandler) RegisterRoutes(r chi.Router, metered func(http.Handler) http.Handler) {
	r.Get("/aerodromes", h.HandleListAerodromes)
	r.Get("/aerodromes/{icao}", h.HandleGetAerodrome)

	r.Group(func(r chi.Router) {
		r.Use(metered)
		r.Get("/weather/{icao}", h.HandleGetForecast)
		r.Get("/metar/{icao}", h.HandleGetMETAR)
		r.Get("/briefing/{icao}", h.HandleGetBriefing)
	})
}

// HandleListAerodromes handles GET /v1/aerodromes.
func (h *WeatherHandler) HandleListAerodromes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.service.Aerodromes()})
}

// HandleGetAerodrome handles GET /v1/aerodromes/{icao}.
func (h *WeatherHandler) HandleGetAerodrome(w http.ResponseWriter, r *http.Request) {
	ad, err := h.service.Aerodrome(chi.URLParam(r, "icao"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ad})
}

// HandleGetForecast handles GET /v1/weather/{icao}.
func (h *WeatherHandler) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Forecast(r.Context(), chi.URLParam(r, "icao"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// HandleGetMETAR handles GET /v1/metar/{icao}.
func (h *WeatherHandler) HandleGetMETAR(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.METAR(r.Context(), chi.URLParam(r, "icao"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// HandleGetBriefing handles GET /v1/briefing/{icao}.
//
// The aircraft query parameter selects the class and defaults to light. An
// unknown class is rejected before any upstream call, so it never consumes
// quota.
func (h *WeatherHandler) HandleGetBriefing(w http.ResponseWriter, r *http.Request) {
	class := DefaultAircraftClass
	if raw := strings.TrimSpace(r.URL.Query().Get("aircraft")); raw != "" {
		class = types.AircraftClass(strings.ToLower(raw))
	}

	briefing, err := h.service.Briefing(r.Context(), chi.URLParam(r, "icao"), class)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if len(briefing.Warnings) > 0 {
		h.logger.InfoContext(r.Context(), "briefing degraded",
			slog.String("icao", briefing.Aerodrome.ICAO),
			slog.Int("warnings", len(briefing.Warnings)),
		)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: briefing})
}
