// Package ops exposes the adapter's operational HTTP endpoints: a health
// check covering the stream and the cache backend, and the Prometheus
// scrape target.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// HealthCheck is one named probe run by the health endpoint.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Check is the reported status of one probe.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// NewRouter builds the operational router.
func NewRouter(logger zerolog.Logger, checks ...HealthCheck) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestMetrics)
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", healthHandler(checks))

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		results := make(map[string]Check, len(checks))
		allHealthy := true
		for _, c := range checks {
			start := time.Now()
			if err := c.Probe(ctx); err != nil {
				results[c.Name] = Check{Status: "fail", Message: err.Error()}
				allHealthy = false
				continue
			}
			results[c.Name] = Check{Status: "pass", Latency: time.Since(start).String()}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    status,
			Version:   version,
			Checks:    results,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
