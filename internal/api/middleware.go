package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/logger"
)

// CorrelationIDMiddleware takes the caller's X-Correlation-ID or mints
// one, echoes it on the response, and stores it in the request context
// for the downstream logger.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = logger.NewCorrelationID()
		}
		w.Header().Set("X-Correlation-ID", id)

		next.ServeHTTP(w, r.WithContext(logger.WithCorrelationID(r.Context(), id)))
	})
}

// LoggingMiddleware stores log in the request context and writes one
// record per request with method, path, status, and duration. The record
// goes through logger.FromContext so it carries the correlation ID.
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithLogger(r.Context(), log)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(ctx))

			reqLog := logger.FromContext(ctx)
			reqLog.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500 response, logged
// through the context logger.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				panicLog := logger.FromContext(r.Context())
				panicLog.Error().
					Interface("panic", v).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("panic recovered")
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the status code written by downstream handlers.
// Only the first WriteHeader counts, matching net/http semantics.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}
