package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	env           TEXT NOT NULL,
	model_path    TEXT NOT NULL,
	episodes      INTEGER NOT NULL,
	summary_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	run_id             TEXT NOT NULL,
	idx                INTEGER NOT NULL,
	reward             REAL NOT NULL,
	length             INTEGER NOT NULL,
	shield_activations INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS phase_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline_id TEXT NOT NULL,
	pipeline    TEXT NOT NULL,
	game        TEXT NOT NULL,
	pattern     TEXT,
	phase       TEXT NOT NULL,
	status      TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	output      TEXT,
	duration_ms INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phase_log_pipeline ON phase_log(pipeline_id);
`

// #endregion schema

// #region store-struct
// Store keeps evaluation runs and pipeline phase history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", dbPath))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to set journal mode")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate")
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region save-run
// SaveRun inserts a run and its episodes atomically. RunID and CreatedAt
// are filled in when empty; the stored record is returned.
func (s *Store) SaveRun(rec RunRecord) (RunRecord, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to marshal summary")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, env, model_path, episodes, summary_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Env, rec.ModelPath, len(rec.Outcomes), string(summaryJSON),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to insert run", goerr.V("run_id", rec.RunID))
	}

	stmt, err := tx.Prepare(
		`INSERT INTO episodes (run_id, idx, reward, length, shield_activations) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to prepare episode insert")
	}
	defer stmt.Close()
	for i, o := range rec.Outcomes {
		if _, err := stmt.Exec(rec.RunID, i, o.Reward, o.Length, o.ShieldActivations); err != nil {
			return RunRecord{}, goerr.Wrap(err, "failed to insert episode",
				goerr.V("run_id", rec.RunID), goerr.V("episode", i))
		}
	}

	if err := tx.Commit(); err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to commit run", goerr.V("run_id", rec.RunID))
	}
	return rec, nil
}

// #endregion save-run

// #region get-run
// GetRun retrieves a run and its episodes by ID.
func (s *Store) GetRun(id string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, env, model_path, summary_json, created_at FROM runs WHERE run_id = ?`, id)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to get run", goerr.V("run_id", id))
	}
	rec.Outcomes, err = s.Episodes(id)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs without their episodes.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, env, model_path, summary_json, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan run")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-runs

// #region episodes
// Episodes returns the outcomes of a run in episode order.
func (s *Store) Episodes(runID string) ([]eval.EpisodeOutcome, error) {
	rows, err := s.db.Query(
		`SELECT reward, length, shield_activations FROM episodes WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query episodes", goerr.V("run_id", runID))
	}
	defer rows.Close()

	var outcomes []eval.EpisodeOutcome
	for rows.Next() {
		var o eval.EpisodeOutcome
		if err := rows.Scan(&o.Reward, &o.Length, &o.ShieldActivations); err != nil {
			return nil, goerr.Wrap(err, "failed to scan episode")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// #endregion episodes

// #region list-phases
// ListPhases returns the phase_log rows of a pipeline run in write order.
func (s *Store) ListPhases(pipelineID string) ([]logging.PhaseEntry, error) {
	rows, err := s.db.Query(
		`SELECT pipeline_id, pipeline, game, pattern, phase, status, exit_code, output, duration_ms, created_at
		 FROM phase_log WHERE pipeline_id = ? ORDER BY id`, pipelineID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list phases", goerr.V("pipeline_id", pipelineID))
	}
	defer rows.Close()

	var entries []logging.PhaseEntry
	for rows.Next() {
		var e logging.PhaseEntry
		var pattern, output sql.NullString
		var durationMS int64
		var createdStr string
		if err := rows.Scan(&e.PipelineID, &e.Pipeline, &e.Game, &pattern, &e.Phase, &e.Status,
			&e.ExitCode, &output, &durationMS, &createdStr); err != nil {
			return nil, goerr.Wrap(err, "failed to scan phase")
		}
		e.Pattern = pattern.String
		e.Output = output.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-phases

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var summaryJSON, createdStr string
	if err := row.Scan(&rec.RunID, &rec.Env, &rec.ModelPath, &summaryJSON, &createdStr); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
		return RunRecord{}, goerr.Wrap(err, "failed to unmarshal summary")
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion helpers
