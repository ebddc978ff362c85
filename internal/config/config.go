// Package config defines the configuration structure for the SkyCheck API.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"strings"
	"time"

	"skycheck/internal/types"
)

// SecretString is an alias for types.SecretString so secrets in configuration
// are never printed or serialized in the clear.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"skycheck-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Usage         UsageConfig
	Upstream      UpstreamConfig
	Suitability   SuitabilityConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s" validate:"gt=0"`
}

// UsageConfig configures the daily quota ledger and its counter store.
//
// Backend "none" disables the store entirely; the ledger then admits every
// request and reports the full plan limit.
type UsageConfig struct {
	Backend      string        `envconfig:"USAGE_STORE" default:"none" validate:"oneof=none memory redis postgres sqlite"`
	KeyPrefix    string        `envconfig:"USAGE_KEY_PREFIX" default:"skycheck:usage" validate:"required"`
	StoreTimeout time.Duration `envconfig:"USAGE_STORE_TIMEOUT" default:"750ms" validate:"gt=0"`

	// APIKeyPlans is a comma separated list of key:plan pairs.
	APIKeyPlans SecretString `envconfig:"API_KEY_PLANS"`

	RedisURL    SecretString `envconfig:"REDIS_URL" validate:"required_if=Backend redis"`
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	DBMaxConns  int32        `envconfig:"DB_MAX_CONNS" default:"5" validate:"min=1"`
	SQLitePath  string       `envconfig:"SQLITE_PATH" default:"skycheck.db"`
}

// KeyPlanEntries splits APIKeyPlans into its raw key:plan entries.
func (u UsageConfig) KeyPlanEntries() []string {
	raw := u.APIKeyPlans.Unmask()
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, p)
		}
	}
	return entries
}

// UpstreamConfig holds the third-party weather API endpoints.
type UpstreamConfig struct {
	ForecastBaseURL string        `envconfig:"FORECAST_BASE_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"required,url"`
	METARBaseURL    string        `envconfig:"METAR_BASE_URL" default:"https://aviationweather.gov/api/data" validate:"required,url"`
	Timeout         time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxRetries      int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"2" validate:"min=0,max=5"`
	UserAgent       string        `envconfig:"UPSTREAM_USER_AGENT" default:"SkyCheck/1.0"`
	ForecastHours   int           `envconfig:"FORECAST_HOURS" default:"12" validate:"min=1,max=72"`
	// CacheTTL bounds how long a fetched forecast or METAR is reused. Zero
	// disables caching.
	CacheTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"5m" validate:"gte=0"`
}

// SuitabilityConfig tunes the flight decision rules.
type SuitabilityConfig struct {
	// LimitsFile optionally points at a TOML file overriding the built-in
	// aircraft thresholds.
	LimitsFile string `envconfig:"AIRCRAFT_LIMITS_FILE"`
	// PoorMarginalCount is the number of marginal criteria that turns the
	// overall verdict poor.
	PoorMarginalCount int `envconfig:"SUITABILITY_POOR_MARGINAL_COUNT" default:"3" validate:"min=1,max=5"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SkyCheck"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"eu-west-2"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
