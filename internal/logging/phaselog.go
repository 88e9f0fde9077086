package logging

import (
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// #region log-phase
// LogPhase writes one phase outcome to the phase_log table.
func LogPhase(db *sql.DB, entry PhaseEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO phase_log (pipeline_id, pipeline, game, pattern, phase, status, exit_code, output, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PipelineID,
		entry.Pipeline,
		entry.Game,
		nullIfEmpty(entry.Pattern),
		entry.Phase,
		entry.Status,
		entry.ExitCode,
		nullIfEmpty(entry.Output),
		entry.Duration.Milliseconds(),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to log phase",
			goerr.V("pipeline_id", entry.PipelineID), goerr.V("phase", entry.Phase))
	}
	return nil
}

// #endregion log-phase

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
