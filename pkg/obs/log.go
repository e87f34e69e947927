// Package obs centralizes the structured-logging conventions shared across
// the orchestration core: a process-wide slog.Logger and the common field
// names every package logs under (session, request_id, stage, error).
package obs

import (
	"context"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLevel adjusts the process-wide minimum log level. Intended to be called
// once at startup from configuration.
func SetLevel(level slog.Level) {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// L returns the process-wide logger.
func L() *slog.Logger {
	return logger
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for later retrieval by For.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// For returns a logger with the request id from ctx attached, if present.
func For(ctx context.Context) *slog.Logger {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
