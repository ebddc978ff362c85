package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidICAO,
		Message: "icao must be four letters",
	}

	expected := "validation_invalid_icao: icao must be four letters"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamForecast, "forecast provider unavailable", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the wrapped error")
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should extract *AppError from chain")
	}
	if target.Code != ErrCodeUpstreamForecast {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamForecast)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidAircraft, http.StatusBadRequest},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeNotFoundAerodrome, http.StatusNotFound},
		{ErrCodeNotFoundMETAR, http.StatusNotFound},
		{ErrCodeUpstreamForecast, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalStore, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationInvalidUnit, "bad unit", nil, map[string]any{"field": "wind_unit"})

	extended := base.WithDetails(map[string]any{"allowed": "kmh,kt,mps,mph"})

	if _, ok := base.Details["allowed"]; ok {
		t.Error("WithDetails must not mutate the receiver")
	}
	if extended.Details["field"] != "wind_unit" || extended.Details["allowed"] != "kmh,kt,mps,mph" {
		t.Errorf("unexpected merged details: %v", extended.Details)
	}
}
