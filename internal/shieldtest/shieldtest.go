// Package shieldtest runs the shielded agent evaluation end to end: harness,
// statistics, performance figure and run history.
package shieldtest

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/shine/go-controller/internal/console"
	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/replay"
	"github.com/danielpatrickdp/shine/go-controller/internal/report"
	"github.com/danielpatrickdp/shine/go-controller/internal/store"
)

// RunSaver persists finished runs. *store.Store implements it.
type RunSaver interface {
	SaveRun(rec store.RunRecord) (store.RunRecord, error)
}

// Request describes one test of a policy.
type Request struct {
	Run eval.RunConfig
	// OutputDir receives the performance figure.
	OutputDir string
	// ExportPath, when set, also writes the run as a replay fixture.
	ExportPath string
}

// Outcome is what a finished test produced.
type Outcome struct {
	Results    eval.Results
	Summary    report.Summary
	FigurePath string
	RunID      string
}

// #region tester
// Tester evaluates policies through a Loader and reports the results.
type Tester struct {
	loader  eval.Loader
	saver   RunSaver
	out     io.Writer
	console *console.Printer
	logger  *zap.Logger
}

// Option customizes a Tester.
type Option func(*Tester)

// WithRunSaver records every finished run.
func WithRunSaver(saver RunSaver) Option {
	return func(t *Tester) { t.saver = saver }
}

// WithOutput sets where status lines and statistics are printed.
func WithOutput(w io.Writer) Option {
	return func(t *Tester) {
		t.out = w
		t.console = console.New(w)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tester) { t.logger = logger }
}

// New creates a Tester.
func New(loader eval.Loader, opts ...Option) *Tester {
	t := &Tester{
		loader:  loader,
		out:     os.Stdout,
		console: console.New(os.Stdout),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Test evaluates req.Run, prints its statistics, saves the figure and
// records the run. A missing model fails before any episode runs.
func (t *Tester) Test(ctx context.Context, req Request) (*Outcome, error) {
	h, err := eval.NewHarness(ctx, req.Run, t.loader,
		eval.WithLogger(t.logger),
		eval.WithEpisodeHook(func(i int, _ eval.EpisodeOutcome) {
			t.console.Progress("episodes", i+1, req.Run.Episodes)
		}),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := h.Close(); err != nil {
			t.logger.Warn("failed to release harness", zap.Error(err))
		}
	}()

	t.console.Info("Evaluating %s agent...", req.Run.Env)
	res, err := h.Evaluate(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "evaluation failed", goerr.V("env", req.Run.Env))
	}
	return t.Report(req, res)
}

// Report summarizes res and writes the figure, history row and optional
// fixture. It is also used to re-render recorded runs.
func (t *Tester) Report(req Request, res eval.Results) (*Outcome, error) {
	summary, err := report.Summarize(res)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Results: res, Summary: summary}

	dir := req.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
	}
	outcome.FigurePath, err = report.NewPerformanceFigure(req.Run.Env).Save(res, dir)
	if err != nil {
		return nil, err
	}

	if err := report.WriteSummary(t.out, req.Run.Env, summary); err != nil {
		return nil, err
	}
	t.console.Muted("Results plot saved as %s", outcome.FigurePath)

	if t.saver != nil {
		rec, err := t.saver.SaveRun(store.RunRecord{
			Env:       req.Run.Env,
			ModelPath: req.Run.ModelPath,
			Summary:   summary,
			Outcomes:  res.Outcomes(),
		})
		if err != nil {
			return nil, err
		}
		outcome.RunID = rec.RunID
		t.logger.Info("run recorded", zap.String("run_id", rec.RunID), zap.String("env", req.Run.Env))
	}

	if req.ExportPath != "" {
		if err := replay.SaveFixture(req.ExportPath, replay.NewFixture(req.Run.Env, req.Run.ModelPath, res)); err != nil {
			return nil, err
		}
		t.logger.Info("run exported", zap.String("path", req.ExportPath))
	}
	return outcome, nil
}

// #endregion tester
