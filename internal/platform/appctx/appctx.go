// Package appctx carries the request-scoped logger through contexts.
//
// RequestLoggerMiddleware stores a logger with request_id, method, path and
// client_ip; the auth gate adds user_id. Handlers log through Logger so their
// lines correlate with the access log.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// Logger returns the request logger, else fallback, else slog.Default().
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithAttrs returns a context whose logger also carries args.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, Logger(ctx, nil).With(args...))
}
