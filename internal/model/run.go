package model

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactTimeLayout formats canonical artifact names (YYYYMMDD_HHMMSS).
const ArtifactTimeLayout = "20060102_150405"

// ScheduleSlot is the instant a session's configuration phase must begin.
type ScheduleSlot struct {
	At      time.Time     `json:"at"`              // configuration start (Nominal - Lead)
	Nominal time.Time     `json:"recording_start"` // minute boundary the recording starts on
	Lead    time.Duration `json:"-"`               // configuration lead time used to derive At
}

// RunContext is one instantiation of a ScheduleSlot carried into execution.
// It is created on dispatch and never reused.
type RunContext struct {
	ID             int64     `json:"run_id"`
	CorrelationID  string    `json:"correlation_id"`
	Slot           time.Time `json:"slot"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingStop  time.Time `json:"recording_stop"`
}

// NewRunContext derives record start/stop from the slot:
// start = slot + lead, stop = start + recordLength.
func NewRunContext(id int64, slot ScheduleSlot, recordLength time.Duration) RunContext {
	start := slot.At.Add(slot.Lead)
	return RunContext{
		ID:             id,
		CorrelationID:  uuid.New().String(),
		Slot:           slot.At,
		RecordingStart: start,
		RecordingStop:  start.Add(recordLength),
	}
}

// ArtifactStem is the canonical base name shared by the run's raw and
// rendered artifacts.
func (r RunContext) ArtifactStem() string {
	return r.RecordingStart.UTC().Format(ArtifactTimeLayout)
}

// LogAttrs returns the attributes every run-scoped log line carries.
func (r RunContext) LogAttrs() []any {
	return []any{
		"run_id", r.ID,
		"correlation_id", r.CorrelationID,
		"slot", r.Slot.UTC().Format(time.RFC3339),
	}
}
