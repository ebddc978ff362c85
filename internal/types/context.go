package types

import (
	"context"
	"log/slog"
)

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
	identityKey  contextKey = "caller_identity"
)

// CallerSource describes how a caller was identified.
type CallerSource string

const (
	CallerSourceAPIKey  CallerSource = "api_key"
	CallerSourceNetwork CallerSource = "network"
)

// Caller is the identity of the party making a metered request. HashedID
// holds the digest only; raw API keys and addresses never travel through
// the context.
type Caller struct {
	HashedID string
	Plan     PlanID
	Source   CallerSource
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the request-scoped logger, falling back to
// slog.Default when none has been set.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithCaller stores the metered caller in the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, identityKey, c)
}

// GetCaller retrieves the metered caller from the context.
func GetCaller(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(identityKey).(Caller)
	return c, ok
}
