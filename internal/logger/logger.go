// Package logger builds the relay's zerolog loggers and threads request
// identity through context. A correlation ID travels with every HTTP
// request, and FromContext hands back a logger already tagged with it so
// call sites never stitch the ID in by hand.
package logger

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	correlationIDKey
)

// New returns a JSON logger writing to stdout at the given level. A level
// string that does not parse falls back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithLogger returns a context carrying log.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID in ctx, or "" when
// none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext returns the context's logger, tagged with the correlation ID
// when one is present. A context without a stored logger yields a fresh
// info-level logger rather than failing.
func FromContext(ctx context.Context) zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// NewCorrelationID returns a fresh UUID string.
func NewCorrelationID() string {
	return uuid.New().String()
}
