package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/shine/go-controller/internal/console"
	"github.com/danielpatrickdp/shine/go-controller/internal/logging"
	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
)

// #endregion

// #region orchestrator-struct

// Orchestrator runs pipelines one phase at a time and stops at the first
// failure.
type Orchestrator struct {
	workDir    string
	downloader Downloader
	db         *sql.DB
	console    *console.Printer
	logger     *zap.Logger
	now        func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkDir sets the directory pipeline directories are created in.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) { o.workDir = dir }
}

// WithDownloader sets the model downloader used for Pipeline.Downloads.
func WithDownloader(d Downloader) Option {
	return func(o *Orchestrator) { o.downloader = d }
}

// WithPhaseLog records every phase outcome in the phase_log table of db.
func WithPhaseLog(db *sql.DB) Option {
	return func(o *Orchestrator) { o.db = db }
}

// WithConsole sets the status line printer.
func WithConsole(p *console.Printer) Option {
	return func(o *Orchestrator) { o.console = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// #endregion

// #region constructor

// New creates an orchestrator working in the current directory.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workDir: ".",
		console: console.New(os.Stdout),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// #endregion

// #region run

// Run executes p: directories, downloads, then every phase for every
// (game, pattern) pair with games as the outer loop. The first failure is
// returned and nothing after it runs. An empty patterns list runs each game
// once with no pattern.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, games, patterns []string) error {
	start := o.now()
	pipelineID := uuid.New().String()
	logger := o.logger.With(zap.String("pipeline", p.Name), zap.String("pipeline_id", pipelineID))
	logger.Info("pipeline started", zap.Strings("games", games), zap.Strings("patterns", patterns))
	if o.db != nil {
		o.console.Muted("Pipeline %s: %s", p.Name, pipelineID)
	}

	if err := o.setupDirectories(p.Dirs); err != nil {
		return err
	}
	if err := o.downloadModels(ctx, logger, p.Downloads); err != nil {
		return err
	}
	if len(p.Phases) == 0 {
		return nil
	}

	if len(patterns) == 0 {
		patterns = []string{""}
	}
	for _, game := range games {
		for _, pattern := range patterns {
			target := phase.Target{Game: game, Pattern: pattern}
			if pattern == "" {
				o.console.Banner("Processing " + game)
			} else {
				o.console.Banner("Processing " + game + " with " + pattern + " pattern")
			}
			for _, ph := range p.Phases {
				if err := o.runPhase(ctx, logger, p.Name, pipelineID, ph, target); err != nil {
					return err
				}
			}
		}
	}

	o.console.Banner(fmt.Sprintf("Pipeline completed in %.2f seconds", o.now().Sub(start).Seconds()))
	logger.Info("pipeline completed", zap.Duration("elapsed", o.now().Sub(start)))
	return nil
}

func (o *Orchestrator) setupDirectories(dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}
	o.console.Header("Setting up directories")
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(o.workDir, d), 0o755); err != nil {
			o.console.Failure("Error creating directory %s: %v", d, err)
			return goerr.Wrap(err, "failed to create directory", goerr.V("dir", d))
		}
		o.console.Info("Created directory: %s", d)
	}
	return nil
}

func (o *Orchestrator) downloadModels(ctx context.Context, logger *zap.Logger, games []string) error {
	if len(games) == 0 {
		return nil
	}
	if o.downloader == nil {
		return goerr.New("pipeline requires model downloads but no downloader is configured")
	}
	o.console.Header("Downloading pretrained models")
	for _, game := range games {
		o.console.Info("\nDownloading %s model...", game)
		path, err := o.downloader.Fetch(ctx, game)
		if err != nil {
			logger.Error("model download failed", zap.String("game", game), zap.Error(err))
			o.console.Failure("Error downloading %s model: %v", game, err)
			return goerr.Wrap(err, "model download failed", goerr.V("game", game))
		}
		logger.Debug("model ready", zap.String("game", game), zap.String("path", path))
		o.console.Success("Successfully downloaded %s model", game)
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, logger *zap.Logger, pipeline, pipelineID string, ph phase.Phase, target phase.Target) error {
	title, success := describe(ph, target)
	o.console.Header(title)

	started := o.now()
	err := ph.Run(ctx, target)
	elapsed := o.now().Sub(started)

	entry := logging.PhaseEntry{
		PipelineID: pipelineID,
		Pipeline:   pipeline,
		Game:       target.Game,
		Pattern:    target.Pattern,
		Phase:      ph.Name(),
		Status:     logging.StatusOK,
		Duration:   elapsed,
	}
	var perr *phase.Error
	if errors.As(err, &perr) {
		entry.ExitCode = perr.ExitCode
		entry.Output = perr.Output
	}
	if err != nil {
		entry.Status = logging.StatusFailed
	}
	o.record(logger, entry)

	if err != nil {
		o.console.Failure("%s failed: %v", ph.Name(), err)
		logger.Error("phase failed",
			zap.String("phase", ph.Name()), zap.Stringer("target", target), zap.Error(err))
		return goerr.Wrap(err, "pipeline aborted",
			goerr.V("pipeline", pipeline),
			goerr.V("phase", ph.Name()),
			goerr.V("game", target.Game),
			goerr.V("pattern", target.Pattern),
			goerr.Tag(phase.ErrTagPhaseFailed),
		)
	}

	o.console.Success("%s", success)
	logger.Info("phase completed",
		zap.String("phase", ph.Name()), zap.Stringer("target", target), zap.Duration("elapsed", elapsed))
	return nil
}

func (o *Orchestrator) record(logger *zap.Logger, entry logging.PhaseEntry) {
	if o.db == nil {
		return
	}
	if err := logging.LogPhase(o.db, entry); err != nil {
		logger.Warn("failed to record phase", zap.Error(err))
	}
}

// #endregion

// #region helpers

func describe(ph phase.Phase, t phase.Target) (string, string) {
	if d, ok := ph.(phase.Describer); ok {
		return d.Title(t), d.Success(t)
	}
	return "Running " + ph.Name() + " for " + t.String(), ph.Name() + " completed successfully"
}

// #endregion
