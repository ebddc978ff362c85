package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skycheck/internal/types"
)

// aviationWeatherBase is the public aviationweather.gov data API.
const aviationWeatherBase = "https://aviationweather.gov/api/data"

// flexNumber accepts a JSON number or a string such as "10+" or "VRB".
type flexNumber struct {
	Value *float64
	Text  string
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.Text = s
		if v, err := strconv.ParseFloat(strings.TrimSuffix(s, "+"), 64); err == nil {
			f.Value = &v
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

type awMETAR struct {
	ICAO     string     `json:"icaoId"`
	Name     string     `json:"name"`
	ObsTime  int64      `json:"obsTime"`
	RawOb    string     `json:"rawOb"`
	Temp     *float64   `json:"temp"`
	Dewp     *float64   `json:"dewp"`
	Wdir     flexNumber `json:"wdir"`
	Wspd     *float64   `json:"wspd"`
	Wgst     *float64   `json:"wgst"`
	Visib    flexNumber `json:"visib"`
	WxString string     `json:"wxString"`
	FltCat   string     `json:"fltCat"`
	Clouds   []struct {
		Cover string `json:"cover"`
		Base  *int   `json:"base"`
	} `json:"clouds"`
}

// AviationWeatherClient implements METARProvider against aviationweather.gov.
type AviationWeatherClient struct {
	base    *BaseClient
	baseURL string
}

var _ METARProvider = (*AviationWeatherClient)(nil)

// NewAviationWeatherClient creates a METAR client. An empty baseURL selects
// the public endpoint.
func NewAviationWeatherClient(base *BaseClient, baseURL string) *AviationWeatherClient {
	if baseURL == "" {
		baseURL = aviationWeatherBase
	}
	return &AviationWeatherClient{base: base, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// LatestMETAR returns the most recent observation for icao.
func (c *AviationWeatherClient) LatestMETAR(ctx context.Context, icao string) (*METAR, error) {
	q := url.Values{}
	q.Set("ids", strings.ToUpper(icao))
	q.Set("format", "json")

	var raw []awMETAR
	if err := c.base.GetJSON(ctx, c.baseURL+"/metar?"+q.Encode(), &raw); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMETAR, "no METAR available for "+strings.ToUpper(icao), nil)
		}
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
			return nil, appErr
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamMETAR, "METAR provider unavailable", err)
	}
	if len(raw) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundMETAR, "no METAR available for "+strings.ToUpper(icao), nil)
	}

	latest := raw[0]
	for _, m := range raw[1:] {
		if m.ObsTime > latest.ObsTime {
			latest = m
		}
	}
	return latest.normalise(), nil
}

func (m awMETAR) normalise() *METAR {
	out := &METAR{
		ICAO:           m.ICAO,
		Name:           m.Name,
		ObservedAt:     time.Unix(m.ObsTime, 0).UTC(),
		Raw:            m.RawOb,
		WindDirection:  m.Wdir.Value,
		WindVariable:   strings.EqualFold(m.Wdir.Text, "VRB"),
		WindGustKt:     m.Wgst,
		VisibilitySM:   m.Visib.Value,
		VisibilityPlus: strings.HasSuffix(m.Visib.Text, "+"),
		TemperatureC:   m.Temp,
		DewPointC:      m.Dewp,
		WxString:       m.WxString,
		FlightCategory: m.FltCat,
	}
	if m.Wspd != nil {
		out.WindSpeedKt = *m.Wspd
	}
	for _, l := range m.Clouds {
		out.Clouds = append(out.Clouds, CloudLayer{Cover: l.Cover, BaseFt: l.Base})
	}
	return out
}
