package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaywire-systems/relaywire-stack/common/middleware"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/handlers"
)

// NewRouter constructs a ServeMux with ingest API routes registered.
func NewRouter(h *handlers.EventsHandler, health *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()

	// Event API
	mux.HandleFunc("POST /events", h.HandleSubmit)
	mux.HandleFunc("GET /inbox", h.HandleInbox)
	mux.HandleFunc("DELETE /inbox/{event_id}", h.HandleDelete)

	// Health endpoints
	mux.HandleFunc("/healthz", health.Health)
	mux.HandleFunc("/readyz", health.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
