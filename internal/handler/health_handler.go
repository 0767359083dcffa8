package handler

import (
	"net/http"
	"time"
)

// HealthHandler handles service health and readiness checks
type HealthHandler struct {
	ready     func() error
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. ready reports why the
// service cannot record yet; nil means always ready.
func NewHealthHandler(ready func() error, version string) *HealthHandler {
	return &HealthHandler{
		ready:     ready,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Health returns the service health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready returns the service readiness status
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Ready: false, Reason: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Ready: true})
}
