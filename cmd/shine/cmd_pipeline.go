package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/shine/go-controller/internal/models"
	"github.com/danielpatrickdp/shine/go-controller/internal/orchestrator"
)

type pipelineFlags struct {
	games     []string
	patterns  []string
	episodes  int
	outputDir string
}

func (f *pipelineFlags) bindEval(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.episodes, "episodes", 0, "episodes per shielded agent test (default from config)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for performance figures (default from config)")
}

// pipelineRun describes how a subcommand builds and feeds its pipeline.
type pipelineRun struct {
	build      func(orchestrator.Settings) orchestrator.Pipeline
	needTester bool
	games      []string
	patterns   []string
}

// #region commands
func (a *app) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create working directories and download pretrained models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.console.Info("=== SHINE Environment Setup ===")
			err := a.runPipeline(cmd.Context(), &pipelineFlags{}, pipelineRun{
				build: func(orchestrator.Settings) orchestrator.Pipeline { return orchestrator.Setup() },
			})
			if err != nil {
				return err
			}
			a.console.Success("Setup completed successfully!")
			return nil
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	f := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for every game and pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd.Context(), f, pipelineRun{
				build:      orchestrator.Full,
				needTester: true,
				games:      f.games,
				patterns:   f.patterns,
			})
		},
	}
	cmd.Flags().StringSliceVar(&f.games, "games", orchestrator.DefaultGames, "games to run")
	cmd.Flags().StringSliceVar(&f.patterns, "patterns", orchestrator.DefaultPatterns, "trigger patterns to use")
	f.bindEval(cmd)
	return cmd
}

func (a *app) trainCmd() *cobra.Command {
	f := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Detect, explain, retrain and evaluate with the block pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.console.Info("=== SHINE Training Pipeline ===")
			err := a.runPipeline(cmd.Context(), f, pipelineRun{
				build:    orchestrator.Train,
				games:    f.games,
				patterns: []string{orchestrator.TrainPattern},
			})
			if err != nil {
				return err
			}
			a.console.Success("Training pipeline completed successfully!")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.games, "games", orchestrator.DefaultTrainGames, "games to train")
	return cmd
}

func (a *app) testCmd() *cobra.Command {
	f := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the retrained shielded agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.console.Info("=== SHINE Testing Pipeline ===")
			err := a.runPipeline(cmd.Context(), f, pipelineRun{
				build:      orchestrator.Test,
				needTester: true,
				games:      f.games,
			})
			if err != nil {
				return err
			}
			a.console.Success("Testing pipeline completed successfully!")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.games, "games", orchestrator.DefaultGames, "games to test")
	f.bindEval(cmd)
	return cmd
}

// #endregion

// #region run-pipeline
func (a *app) runPipeline(ctx context.Context, f *pipelineFlags, run pipelineRun) error {
	db, err := a.openStore(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	provider := models.NewProvider(a.cfg.Models.Source, filepath.Join(a.cfg.WorkDir, a.cfg.Models.Dir),
		models.WithLogger(a.logger))
	defer func() {
		if err := provider.Close(); err != nil {
			a.logger.Warn("failed to close model provider", zap.Error(err))
		}
	}()

	settings := orchestrator.Settings{
		Interpreter: a.interpreter(),
		Runner:      a.newRunner(a.logger),
		Episodes:    a.cfg.Eval.Episodes,
		OutputDir:   a.cfg.Eval.OutputDir,
	}
	if f.episodes > 0 {
		settings.Episodes = f.episodes
	}
	if f.outputDir != "" {
		settings.OutputDir = f.outputDir
	}
	if run.needTester && a.cfg.Bridge.Addr != "" {
		tester, release, err := a.tester(db)
		if err != nil {
			return err
		}
		defer release()
		settings.Tester = tester
	}

	opts := []orchestrator.Option{
		orchestrator.WithWorkDir(a.cfg.WorkDir),
		orchestrator.WithDownloader(provider),
		orchestrator.WithConsole(a.console),
		orchestrator.WithLogger(a.logger),
	}
	if db != nil {
		opts = append(opts, orchestrator.WithPhaseLog(db.DB()))
	}
	return orchestrator.New(opts...).Run(ctx, run.build(settings), run.games, run.patterns)
}

// #endregion
