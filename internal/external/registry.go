package external

import (
	"log/slog"

	"skycheck/internal/config"
)

// ClientRegistry holds the weather providers. It is the single point through
// which the rest of the application reaches third-party APIs.
type ClientRegistry struct {
	Forecast ForecastProvider
	METAR    METARProvider
}

// NewClientRegistry builds one BaseClient per provider so each gets its own
// circuit breaker.
func NewClientRegistry(cfg config.UpstreamConfig, logger *slog.Logger) *ClientRegistry {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	forecastBase := NewBaseClient(DefaultHTTPClient(cfg.Timeout), "open-meteo", policy, cfg.UserAgent)
	metarBase := NewBaseClient(DefaultHTTPClient(cfg.Timeout), "aviationweather", policy, cfg.UserAgent)

	if logger != nil {
		logger.Info("weather providers configured",
			"forecast_url", cfg.ForecastBaseURL,
			"metar_url", cfg.METARBaseURL,
			"max_retries", cfg.MaxRetries,
		)
	}

	return &ClientRegistry{
		Forecast: NewOpenMeteoClient(forecastBase, cfg.ForecastBaseURL),
		METAR:    NewAviationWeatherClient(metarBase, cfg.METARBaseURL),
	}
}
