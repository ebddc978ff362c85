package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"skycheck/internal/core"
	"skycheck/internal/suitability"
	"skycheck/internal/types"
)

func makeSuitabilityRouter() http.Handler {
	logger := slog.Default()
	h := NewSuitabilityHandler(suitability.NewEvaluator(nil, suitability.DefaultPolicy()), core.NewValidator(logger), logger)
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		h.RegisterRoutes(r, func(http.Handler) http.Handler {
			panic("suitability routes must not be metered")
		})
	})
	return r
}

func postSuitability(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/suitability", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	makeSuitabilityRouter().ServeHTTP(rec, req)
	return rec
}

func TestHandleEvaluate_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		verdict  types.Verdict
		marginal int
		poor     int
	}{
		{
			name:    "calm clear light aircraft",
			body:    `{"aircraft":"light","wind_speed":10,"visibility":10000,"cloud_cover_percent":20,"cloud_base_feet":3000,"precipitation_rate":0}`,
			verdict: types.VerdictGood,
		},
		{
			name:     "two marginal criteria",
			body:     `{"aircraft":"light","wind_speed":18,"wind_unit":"kt","visibility":6000,"cloud_cover_percent":20,"cloud_base_feet":3000}`,
			verdict:  types.VerdictMarginal,
			marginal: 2,
		},
		{
			name:    "strong wind for a microlight",
			body:    `{"aircraft":"Microlight","wind_speed":20,"wind_unit":"kt","visibility":10,"visibility_unit":"km","cloud_cover_percent":10,"cloud_base_feet":5000}`,
			verdict: types.VerdictPoor,
			poor:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSuitability(t, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var got SuitabilityResponse
			decodeData(t, rec, &got)
			if got.Source != types.SourceManual {
				t.Errorf("source = %q", got.Source)
			}
			o := got.Decision.Overall
			if o.Verdict != tt.verdict || o.Marginal != tt.marginal || o.Poor != tt.poor {
				t.Errorf("overall = %+v, want %s with %d marginal %d poor", o, tt.verdict, tt.marginal, tt.poor)
			}
			if len(got.Decision.Criteria) != len(types.AllCriteria) {
				t.Errorf("expected %d criteria, got %d", len(types.AllCriteria), len(got.Decision.Criteria))
			}
		})
	}
}

func TestHandleEvaluate_OmittedFieldsReadAsZero(t *testing.T) {
	rec := postSuitability(t, `{"aircraft":"jet"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got SuitabilityResponse
	decodeData(t, rec, &got)
	// zero visibility and cloud base are below every poor threshold
	if got.Decision.Overall.Verdict != types.VerdictPoor {
		t.Errorf("verdict = %s", got.Decision.Overall.Verdict)
	}
	if got.Decision.Criteria[types.CriterionWind].Status != types.VerdictGood {
		t.Errorf("zero wind should be good")
	}
}

func TestHandleEvaluate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"missing aircraft", `{"wind_speed":5}`, types.ErrCodeValidationMissingField},
		{"unknown aircraft", `{"aircraft":"glider"}`, types.ErrCodeValidationInvalidAircraft},
		{"bad wind unit", `{"aircraft":"light","wind_unit":"beaufort"}`, types.ErrCodeValidationInvalidUnit},
		{"bad visibility unit", `{"aircraft":"light","visibility_unit":"nm"}`, types.ErrCodeValidationInvalidUnit},
		{"negative wind", `{"aircraft":"light","wind_speed":-3}`, types.ErrCodeValidationInvalidSnapshot},
		{"cover over 100", `{"aircraft":"light","cloud_cover_percent":140}`, types.ErrCodeValidationInvalidSnapshot},
		{"string number", `{"aircraft":"light","wind_speed":"calm"}`, types.ErrCodeValidationInvalidJSON},
		{"unknown field", `{"aircraft":"light","gusts":30}`, types.ErrCodeValidationInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSuitability(t, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != string(tt.code) {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestHandleGetLimits(t *testing.T) {
	router := makeSuitabilityRouter()

	rec := doGet(t, router, "/v1/suitability/limits/light")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got LimitsResponse
	decodeData(t, rec, &got)
	if got.Limits.Wind.Good != 15 || got.Limits.Wind.Poor != 25 {
		t.Errorf("light wind limits = %+v", got.Limits.Wind)
	}
	if got.PoorMarginalCount != suitability.DefaultPoorMarginalCount {
		t.Errorf("poor_marginal_count = %d", got.PoorMarginalCount)
	}

	rec = doGet(t, router, "/v1/suitability/limits/glider")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown class, got %d", rec.Code)
	}
}
