package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dandantas/grabber/internal/model"
	"github.com/dandantas/grabber/internal/scheduler"
)

// ScheduleSource exposes the scheduler state served by the API.
type ScheduleSource interface {
	Snapshot() scheduler.Snapshot
	Reset()
}

// RunsHandler serves the schedule and recent run statuses
type RunsHandler struct {
	store    *model.RunStatusStore
	schedule ScheduleSource
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(store *model.RunStatusStore, schedule ScheduleSource) *RunsHandler {
	return &RunsHandler{store: store, schedule: schedule}
}

// ListRunsResponse is the body of GET /api/v1/runs
type ListRunsResponse struct {
	Runs  []model.RunStatus `json:"runs"`
	Count int               `json:"count"`
}

// Schedule returns the current slot, lead time and interval
func (h *RunsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.schedule.Snapshot())
}

// ResetSchedule drops the sticky slot so the next poll selects a new one.
func (h *RunsHandler) ResetSchedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.schedule.Reset()
	writeJSON(w, http.StatusAccepted, h.schedule.Snapshot())
}

// List returns recent runs, newest first
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	runs := h.store.List(parseQueryInt(r, "limit", 20))
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// Get returns a single run by id
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	id, err := strconv.ParseInt(strings.TrimSuffix(raw, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	status, ok := h.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
