package api

import (
	"net/http"
	"time"
)

// HealthHandler handles GET /health.
// Returns process status, the business this instance serves, and uptime.
func HealthHandler(businessID string, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"business": businessID,
			"uptime":   time.Since(start).Round(time.Second).String(),
		})
	}
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Checks broker connectivity.
// Returns 200 if a session is established, 503 with Retry-After otherwise.
func ReadyzHandler(ready Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Connected() {
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, "broker unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
