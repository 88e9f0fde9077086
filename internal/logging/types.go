package logging

import "time"

// #region phase-entry
// PhaseEntry is a single row in the phase_log table.
type PhaseEntry struct {
	PipelineID string
	Pipeline   string // "full" | "train" | "test" | "setup"
	Game       string
	Pattern    string
	Phase      string
	Status     string // "ok" | "failed"
	ExitCode   int
	Output     string
	Duration   time.Duration
	CreatedAt  time.Time
}

// Phase statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// #endregion phase-entry
