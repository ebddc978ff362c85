// Package core provides the API chassis for SkyCheck. It builds a chi router
// that serves both plain HTTP (local dev) and API Gateway via the Lambda
// adapter, and applies the cross-cutting concerns (logging, metrics, quota
// metering, error envelopes) before requests reach domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records API request latency and count. endpoint is the
	// route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies of the HTTP API so tests can inject
// their own.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// Ledger meters routes wrapped with Quota. Nil disables metering.
	Ledger QuotaLedger

	HealthProbes      []HealthProbe
	V1RouteRegistrars []RouteRegistrar

	// Resources are closed in reverse order by Shutdown.
	Resources []io.Closer

	router *chi.Mux
}

// NewServer prepares a server for route mounting. The caller mounts routes
// with MountRoutes after populating the registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown closes registered resources, newest first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.Resources) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Resources[i].Close(); err != nil {
			s.Logger.Error("error closing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
