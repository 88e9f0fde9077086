package orchestrator

import (
	"context"

	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
)

// #region pipeline
// Pipeline is an ordered list of phases plus the setup work done before them.
type Pipeline struct {
	Name string
	// Dirs are created relative to the working directory before anything runs.
	Dirs []string
	// Downloads lists the games whose pretrained models are fetched.
	Downloads []string
	Phases    []phase.Phase
}

// PhaseNames lists the phase names in run order.
func (p Pipeline) PhaseNames() []string {
	names := make([]string, len(p.Phases))
	for i, ph := range p.Phases {
		names[i] = ph.Name()
	}
	return names
}

// #endregion pipeline

// Downloader fetches a pretrained model for a game. *models.Provider
// implements it.
type Downloader interface {
	Fetch(ctx context.Context, game string) (string, error)
}

// Phase names.
const (
	PhaseDetect           = "detect"
	PhaseExplain          = "explain"
	PhaseRetrain          = "retrain"
	PhaseEvaluatePoisoned = "evaluate-poisoned"
	PhaseEvaluateClean    = "evaluate-clean"
	PhaseTestShielded     = "test-shielded"
)
