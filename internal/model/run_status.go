package model

import (
	"sort"
	"sync"
	"time"
)

// StageError records a failure of one pipeline stage.
type StageError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RunStatus is the observable record of one run.
type RunStatus struct {
	Run           RunContext   `json:"run"`
	Status        RunOutcome   `json:"status"`
	SessionState  string       `json:"session_state"`
	RawArtifact   string       `json:"raw_artifact,omitempty"`
	ImageArtifact string       `json:"image_artifact,omitempty"`
	Errors        []StageError `json:"errors,omitempty"`
	StartedAt     time.Time    `json:"started_at,omitempty"`
	FinishedAt    time.Time    `json:"finished_at,omitempty"`
}

// RunStatusStore is an in-memory store for the most recent run statuses.
type RunStatusStore struct {
	mu    sync.RWMutex
	runs  map[int64]*RunStatus
	limit int
}

// NewRunStatusStore creates a store that keeps at most limit runs.
func NewRunStatusStore(limit int) *RunStatusStore {
	if limit <= 0 {
		limit = 100
	}
	return &RunStatusStore{
		runs:  make(map[int64]*RunStatus),
		limit: limit,
	}
}

// Set stores a copy of status, evicting the oldest run when full.
func (s *RunStatusStore) Set(status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status.Errors = append([]StageError(nil), status.Errors...)
	s.runs[status.Run.ID] = &status

	for len(s.runs) > s.limit {
		var oldest int64 = -1
		for id := range s.runs {
			if oldest == -1 || id < oldest {
				oldest = id
			}
		}
		delete(s.runs, oldest)
	}
}

// Get retrieves a run status
func (s *RunStatusStore) Get(runID int64) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, exists := s.runs[runID]
	if !exists {
		return RunStatus{}, false
	}
	return *status, true
}

// List returns up to limit statuses, newest run first.
func (s *RunStatusStore) List(limit int) []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunStatus, 0, len(s.runs))
	for _, status := range s.runs {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run.ID > out[j].Run.ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
