// Package api is the read-only HTTP surface of the relay: liveness,
// broker readiness, and metrics. It shares no mutable state with the
// dispatch loop beyond the readiness probe.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Readiness reports whether the broker session is established.
type Readiness interface {
	Connected() bool
}

// NewRouter creates a chi.Mux with the health endpoints, metrics, and
// middleware configured.
func NewRouter(businessID string, ready Readiness, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware)

	start := time.Now()

	r.Get("/health", HealthHandler(businessID, start))
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
