// Package main is the entry point for the SkyCheck API server.
//
// It loads the configuration, opens the usage counter store, builds the
// weather and suitability services, and mounts them on the core chassis.
//
// In local mode it runs as a standard HTTP server on the configured port.
// Inside AWS Lambda it serves API Gateway HTTP API events through
// core.LambdaHandler and flushes buffered metrics after every invocation.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"skycheck/internal/api/handlers"
	"skycheck/internal/billing"
	"skycheck/internal/config"
	"skycheck/internal/core"
	"skycheck/internal/counterstore"
	"skycheck/internal/external"
	"skycheck/internal/suitability"
	"skycheck/internal/telemetry"
	"skycheck/internal/usage"
	"skycheck/internal/weather"
)

const (
	// sweepInterval is how often the local server purges expired counters.
	sweepInterval = time.Hour
	// metricsFlushInterval is how often buffered metrics are sent in HTTP mode.
	metricsFlushInterval = time.Minute
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("skycheck API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"usage_store", cfg.Usage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, newCloudWatchClient)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		lambda.Start(a.lambdaHandler())
		return nil
	}
	return a.serveHTTP(ctx)
}

// secretProvider returns the SSM provider outside local mode. The loader only
// consults it when _SSM_PARAM variables are present.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "eu-west-2"
	}
	return config.NewSSMProvider(region)
}

// cloudWatchFactory builds a CloudWatch client; replaced in tests.
type cloudWatchFactory func(ctx context.Context, region string) (telemetry.CloudWatchClient, error)

func newCloudWatchClient(ctx context.Context, region string) (telemetry.CloudWatchClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for CloudWatch (region=%s): %w", region, err)
	}
	return cloudwatch.NewFromConfig(awsCfg), nil
}

// application is the fully wired server and the background work it owns.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *core.Server
	store   counterstore.Store
	metrics *telemetry.CloudWatchMetrics
}

// buildApp wires every dependency and mounts the routes.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, newCW cloudWatchFactory) (*application, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a := &application{cfg: cfg, logger: logger, server: srv}

	// Telemetry.
	var ledgerMetrics usage.Metrics
	var weatherMetrics weather.Metrics
	if cfg.Observability.MetricsEnabled {
		client, err := newCW(ctx, cfg.Observability.AWSRegion)
		if err != nil {
			return nil, err
		}
		a.metrics = telemetry.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = a.metrics
		ledgerMetrics = a.metrics
		weatherMetrics = a.metrics
	}

	// Usage ledger.
	store, err := counterstore.Open(ctx, cfg.Usage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening usage store: %w", err)
	}
	plans := billing.NewStaticPlanRegistry()
	keys := billing.NewKeyPlanTable(cfg.Usage.KeyPlanEntries())
	logger.Info("api key plans loaded", "keys", keys.Len())

	var ledgerStore usage.CounterStore
	if store != nil {
		a.store = store
		ledgerStore = store
		srv.Resources = append(srv.Resources, io.Closer(store))
		srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "counter_store", Target: store})
	}
	ledger := usage.NewLedger(ledgerStore, plans, keys, logger, usage.Options{
		KeyPrefix:    cfg.Usage.KeyPrefix,
		StoreTimeout: cfg.Usage.StoreTimeout,
		Metrics:      ledgerMetrics,
	})
	srv.Ledger = ledger

	// Suitability.
	limits, err := suitability.LoadLimitsFile(cfg.Suitability.LimitsFile)
	if err != nil {
		return nil, fmt.Errorf("loading aircraft limits: %w", err)
	}
	evaluator := suitability.NewEvaluator(limits, suitability.Policy{
		PoorMarginalCount: cfg.Suitability.PoorMarginalCount,
	})

	// Weather.
	clients := external.NewClientRegistry(cfg.Upstream, logger)
	weatherSvc := weather.NewService(clients.Forecast, clients.METAR, weather.DefaultCatalogue(), evaluator, logger, weather.Options{
		ForecastHours: cfg.Upstream.ForecastHours,
		CacheTTL:      cfg.Upstream.CacheTTL,
		Metrics:       weatherMetrics,
	})

	// Handlers.
	weatherHandler := handlers.NewWeatherHandler(weatherSvc, logger)
	suitabilityHandler := handlers.NewSuitabilityHandler(evaluator, srv.Validator, logger)
	usageHandler := handlers.NewUsageHandler(ledger, plans, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		weatherHandler.RegisterRoutes,
		suitabilityHandler.RegisterRoutes,
		usageHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return a, nil
}

// lambdaHandler adapts the router to API Gateway and flushes metrics before
// each invocation returns, since the runtime may freeze the process after.
func (a *application) lambdaHandler() func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	serve := core.LambdaHandler(a.server.Handler())
	return func(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := serve(ctx, ev)
		if a.metrics != nil {
			a.metrics.Flush(context.WithoutCancel(ctx))
		}
		return resp, err
	}
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// serveHTTP runs the HTTP server, the counter sweeper and the metrics
// flusher until ctx is cancelled, then shuts down gracefully.
func (a *application) serveHTTP(ctx context.Context) error {
	addr := ":" + a.cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var background sync.WaitGroup
	if a.metrics != nil {
		background.Go(func() { a.metrics.Run(bgCtx, metricsFlushInterval) })
	}
	if a.store != nil {
		background.Go(func() { counterstore.RunSweeper(bgCtx, a.store, sweepInterval, a.logger) })
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	a.logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", "error", err)
	}

	// metrics.Run flushes once more on cancellation
	stopBackground()
	background.Wait()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server resource shutdown error", "error", err)
		return errors.Join(runErr, fmt.Errorf("server shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	a.logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
