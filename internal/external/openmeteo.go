package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skycheck/internal/types"
)

// openMeteoBase is the public Open-Meteo forecast endpoint.
const openMeteoBase = "https://api.open-meteo.com/v1/forecast"

const openMeteoHourly = "wind_speed_10m,wind_gusts_10m,wind_direction_10m,visibility,cloud_cover,precipitation,temperature_2m,dew_point_2m"

// openMeteoResponse mirrors the subset of the Open-Meteo payload we request.
type openMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Hourly    struct {
		Time          []string   `json:"time"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		WindGusts     []*float64 `json:"wind_gusts_10m"`
		WindDirection []*float64 `json:"wind_direction_10m"`
		Visibility    []*float64 `json:"visibility"`
		CloudCover    []*float64 `json:"cloud_cover"`
		Precipitation []*float64 `json:"precipitation"`
		Temperature   []*float64 `json:"temperature_2m"`
		DewPoint      []*float64 `json:"dew_point_2m"`
	} `json:"hourly"`
}

// OpenMeteoClient implements ForecastProvider against Open-Meteo.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
}

var _ ForecastProvider = (*OpenMeteoClient)(nil)

// NewOpenMeteoClient creates a forecast client. An empty baseURL selects the
// public endpoint.
func NewOpenMeteoClient(base *BaseClient, baseURL string) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = openMeteoBase
	}
	return &OpenMeteoClient{base: base, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Forecast fetches the next hours of hourly data in UTC.
func (c *OpenMeteoClient) Forecast(ctx context.Context, lat, lon float64, hours int) (*Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", openMeteoHourly)
	q.Set("wind_speed_unit", "kmh")
	q.Set("timezone", "UTC")
	q.Set("forecast_hours", strconv.Itoa(hours))

	var raw openMeteoResponse
	if err := c.base.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &raw); err != nil {
		return nil, forecastError(err)
	}

	h := raw.Hourly
	out := &Forecast{Latitude: raw.Latitude, Longitude: raw.Longitude}
	for i, ts := range h.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, time.UTC)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamForecast,
				fmt.Sprintf("forecast returned invalid time %q", ts), err)
		}
		out.Hours = append(out.Hours, ForecastHour{
			Time:            t,
			WindSpeedKMH:    at(h.WindSpeed, i),
			WindGustKMH:     at(h.WindGusts, i),
			WindDirection:   at(h.WindDirection, i),
			VisibilityM:     at(h.Visibility, i),
			CloudCoverPct:   at(h.CloudCover, i),
			PrecipitationMM: at(h.Precipitation, i),
			TemperatureC:    at(h.Temperature, i),
			DewPointC:       at(h.DewPoint, i),
		})
	}
	if len(out.Hours) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "forecast returned no hourly data", nil)
	}
	return out, nil
}

// at returns s[i] or nil when the series is short.
func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func forecastError(err error) error {
	if errors.Is(err, errNotFound) {
		return types.NewAppError(types.ErrCodeUpstreamForecast, "forecast not available for location", err)
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
		return appErr
	}
	return types.NewAppError(types.ErrCodeUpstreamForecast, "forecast provider unavailable", err)
}

// DefaultHTTPClient returns the http.Client used for providers.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
