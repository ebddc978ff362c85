package external

import (
	"context"
	"time"
)

// ForecastProvider returns hourly model forecasts for a point.
type ForecastProvider interface {
	Forecast(ctx context.Context, lat, lon float64, hours int) (*Forecast, error)
}

// METARProvider returns the latest observation for an aerodrome.
type METARProvider interface {
	LatestMETAR(ctx context.Context, icao string) (*METAR, error)
}

// Forecast is a normalised hourly forecast. Units: wind km/h, visibility
// metres, cover percent, precipitation mm, temperatures Celsius.
type Forecast struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Hours     []ForecastHour `json:"hours"`
}

// ForecastHour is one forecast step. Nil fields were not provided.
type ForecastHour struct {
	Time            time.Time `json:"time"`
	WindSpeedKMH    *float64  `json:"wind_speed_kmh,omitempty"`
	WindGustKMH     *float64  `json:"wind_gust_kmh,omitempty"`
	WindDirection   *float64  `json:"wind_direction,omitempty"`
	VisibilityM     *float64  `json:"visibility_m,omitempty"`
	CloudCoverPct   *float64  `json:"cloud_cover_pct,omitempty"`
	PrecipitationMM *float64  `json:"precipitation_mm,omitempty"`
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	DewPointC       *float64  `json:"dew_point_c,omitempty"`
}

// CloudLayer is one reported METAR layer.
type CloudLayer struct {
	Cover  string `json:"cover"`
	BaseFt *int   `json:"base_ft,omitempty"`
}

// METAR is a normalised observation. Wind is in knots and visibility in
// statute miles; VisibilityPlus marks "10+".
type METAR struct {
	ICAO           string       `json:"icao"`
	Name           string       `json:"name,omitempty"`
	ObservedAt     time.Time    `json:"observed_at"`
	Raw            string       `json:"raw"`
	WindDirection  *float64     `json:"wind_direction,omitempty"`
	WindVariable   bool         `json:"wind_variable,omitempty"`
	WindSpeedKt    float64      `json:"wind_speed_kt"`
	WindGustKt     *float64     `json:"wind_gust_kt,omitempty"`
	VisibilitySM   *float64     `json:"visibility_sm,omitempty"`
	VisibilityPlus bool         `json:"visibility_plus,omitempty"`
	TemperatureC   *float64     `json:"temperature_c,omitempty"`
	DewPointC      *float64     `json:"dew_point_c,omitempty"`
	Clouds         []CloudLayer `json:"clouds,omitempty"`
	WxString       string       `json:"wx,omitempty"`
	FlightCategory string       `json:"flight_category,omitempty"`
}
