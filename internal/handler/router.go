package handler

import (
	"net/http"

	"github.com/dandantas/grabber/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	runsHandler   *RunsHandler
	healthHandler *HealthHandler
}

// NewRouter creates a new router
func NewRouter(runsHandler *RunsHandler, healthHandler *HealthHandler) *Router {
	return &Router{
		runsHandler:   runsHandler,
		healthHandler: healthHandler,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.HandleFunc("/ready", rt.healthHandler.Ready)

	mux.HandleFunc("/api/v1/schedule", rt.runsHandler.Schedule)
	mux.HandleFunc("/api/v1/schedule/reset", rt.runsHandler.ResetSchedule)
	mux.HandleFunc("/api/v1/runs", rt.runsHandler.List)
	mux.HandleFunc("/api/v1/runs/", rt.runsHandler.Get)

	handler := middleware.Recovery(mux)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	return handler
}
