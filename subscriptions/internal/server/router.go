package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaywire-systems/relaywire-stack/common/middleware"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/handlers"
)

// NewRouter wires the subscription management endpoints.
func NewRouter(h *handlers.SubscriptionsHandler, health *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /subscriptions", h.HandleCreate)
	mux.HandleFunc("GET /subscriptions", h.HandleList)
	mux.HandleFunc("GET /subscriptions/{workflow_id}", h.HandleGet)
	mux.HandleFunc("PUT /subscriptions/{workflow_id}/enable", h.HandleEnable)
	mux.HandleFunc("PUT /subscriptions/{workflow_id}/disable", h.HandleDisable)

	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
