package store

import (
	"time"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/report"
)

// #region run-record
// RunRecord is one stored evaluation run with its per-episode outcomes.
type RunRecord struct {
	RunID     string
	Env       string
	ModelPath string
	Summary   report.Summary
	Outcomes  []eval.EpisodeOutcome
	CreatedAt time.Time
}

// Results rebuilds the harness output of the run.
func (r RunRecord) Results() eval.Results {
	return eval.FromOutcomes(r.Outcomes)
}

// #endregion run-record
