package core

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"skycheck/internal/config"
)

// testLogger returns a discard logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bufferLogger returns a JSON logger writing into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Security:    config.SecurityConfig{CorsAllowedOrigins: []string{"*"}},
		Build:       config.BuildInfo{Version: "test"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}
