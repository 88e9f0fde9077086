package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
	"github.com/danielpatrickdp/shine/go-controller/internal/shieldtest"
)

// Tester runs the shielded agent evaluation. *shieldtest.Tester implements it.
type Tester interface {
	Test(ctx context.Context, req shieldtest.Request) (*shieldtest.Outcome, error)
}

// ShieldTest is the phase that evaluates the shielded policy of a target's
// game in-process.
type ShieldTest struct {
	Tester Tester
	// ModelPath may reference {game}, {name}, {short} and {pattern}.
	ModelPath string
	Episodes  int
	WorkDir   string
	OutputDir string
}

// Name implements phase.Phase.
func (s *ShieldTest) Name() string { return PhaseTestShielded }

// Title implements phase.Describer.
func (s *ShieldTest) Title(t phase.Target) string {
	return "Testing shielded agent for " + t.Game
}

// Success implements phase.Describer.
func (s *ShieldTest) Success(phase.Target) string {
	return "Shielded agent testing completed successfully"
}

// Run implements phase.Phase.
func (s *ShieldTest) Run(ctx context.Context, t phase.Target) error {
	episodes := s.Episodes
	if episodes <= 0 {
		episodes = eval.DefaultEpisodes
	}
	req := shieldtest.Request{
		Run: eval.RunConfig{
			Env:       t.Game,
			ModelPath: filepath.Join(s.WorkDir, t.Expand(s.ModelPath)),
			Episodes:  episodes,
		},
		OutputDir: s.OutputDir,
	}
	if _, err := s.Tester.Test(ctx, req); err != nil {
		return &phase.Error{Phase: s.Name(), Target: t, Err: err}
	}
	return nil
}
