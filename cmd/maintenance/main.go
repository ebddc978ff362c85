// Package main is the entrypoint for the maintenance Lambda function.
//
// EventBridge rules send a MaintenancePayload naming the task; the handler
// routes it to the matching scheduler service:
//
//	purge_expired_counters  delete usage counters whose UTC day has ended
//	probe_upstreams         run canary briefings against the weather providers
//
// The local API server sweeps counters itself; this function covers
// deployments where the API runs in Lambda and has no background loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"skycheck/internal/config"
	"skycheck/internal/counterstore"
	"skycheck/internal/external"
	"skycheck/internal/scheduler"
	"skycheck/internal/suitability"
	"skycheck/internal/weather"
)

// CounterPurger deletes expired usage counters.
type CounterPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// UpstreamProber runs the canary briefings.
type UpstreamProber interface {
	Probe(ctx context.Context) (int, error)
}

// Handler dispatches maintenance tasks.
type Handler struct {
	Purger   CounterPurger
	Prober   UpstreamProber
	WorkerID string
	Logger   *slog.Logger
}

// Handle runs one maintenance task and returns a summary line.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	task := string(payload.Task)
	logger.InfoContext(ctx, "maintenance handler invoked",
		"task", task,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	start := time.Now()
	items, err := h.dispatch(ctx, payload.Task, now)
	if err != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", task,
			"error", err,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", task, items)
	logger.InfoContext(ctx, result,
		"task", task,
		"items", items,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, task scheduler.TaskType, now time.Time) (int, error) {
	switch task {
	case scheduler.TaskPurgeCounters:
		return h.Purger.PurgeExpired(ctx, now)
	case scheduler.TaskProbeUpstreams:
		return h.Prober.Probe(ctx)
	}
	return 0, fmt.Errorf("unknown task type %q", task)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h, cleanup, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("maintenance startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	lambda.Start(h.Handle)
}

// newHandler loads configuration and wires the scheduler services.
func newHandler(ctx context.Context, logger *slog.Logger) (*Handler, func(), error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "eu-west-2"
		}
		provider = config.NewSSMProvider(region)
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := counterstore.Open(ctx, cfg.Usage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening usage store: %w", err)
	}
	cleanup := func() {}
	var sweeper scheduler.CounterSweeper
	if store != nil {
		cleanup = func() { _ = store.Close() }
		if sw, ok := store.(counterstore.Sweeper); ok {
			sweeper = sw
		}
	}

	limits, err := suitability.LoadLimitsFile(cfg.Suitability.LimitsFile)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("loading aircraft limits: %w", err)
	}
	evaluator := suitability.NewEvaluator(limits, suitability.Policy{PoorMarginalCount: cfg.Suitability.PoorMarginalCount})
	clients := external.NewClientRegistry(cfg.Upstream, logger)
	svc := weather.NewService(clients.Forecast, clients.METAR, weather.DefaultCatalogue(), evaluator, logger,
		weather.Options{ForecastHours: cfg.Upstream.ForecastHours})

	return &Handler{
		Purger:   scheduler.NewCounterPurgeService(sweeper, logger),
		Prober:   scheduler.NewUpstreamProbeService(svc, probeAerodromes(), logger),
		WorkerID: uuid.NewString(),
		Logger:   logger,
	}, cleanup, nil
}

// probeAerodromes reads PROBE_AERODROMES, a comma separated ICAO list.
func probeAerodromes() []string {
	raw := os.Getenv("PROBE_AERODROMES")
	var out []string
	for _, code := range strings.Split(raw, ",") {
		if code = strings.TrimSpace(code); code != "" {
			out = append(out, strings.ToUpper(code))
		}
	}
	return out
}
