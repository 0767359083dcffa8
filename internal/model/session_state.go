package model

// SessionState is the transient state of one remote session.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionConfiguring
	SessionArmed
	SessionDownloading
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnected:
		return "connected"
	case SessionConfiguring:
		return "configuring"
	case SessionArmed:
		return "armed"
	case SessionDownloading:
		return "downloading"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RunOutcome is the terminal classification of a run.
type RunOutcome string

const (
	OutcomeQueued           RunOutcome = "queued"
	OutcomeRunning          RunOutcome = "running"
	OutcomeSucceeded        RunOutcome = "succeeded"
	OutcomePartial          RunOutcome = "partial" // artifact captured, render or upload failed
	OutcomeFailedNoArtifact RunOutcome = "failed_no_artifact"
)
