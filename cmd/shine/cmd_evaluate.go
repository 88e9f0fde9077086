package main

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/orchestrator"
	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
	"github.com/danielpatrickdp/shine/go-controller/internal/shieldtest"
)

// DefaultEvalEnv is evaluated when --env is not given.
const DefaultEvalEnv = "BreakoutNoFrameskip-v4"

func (a *app) evaluateCmd() *cobra.Command {
	var (
		env       string
		modelPath string
		episodes  int
		render    bool
		bridge    string
		outputDir string
		dbPath    string
		export    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a shielded agent and plot its performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("bridge") {
				a.cfg.Bridge.Addr = bridge
			}
			if !cmd.Flags().Changed("db") {
				dbPath = a.cfg.Store.Path
			}
			if !cmd.Flags().Changed("output-dir") {
				outputDir = a.cfg.Eval.OutputDir
			}
			run := eval.RunConfig{
				Env:       env,
				ModelPath: modelPath,
				Episodes:  episodes,
				Render:    render,
			}
			if a.cfg.Bridge.Addr == "" {
				return a.evaluateScript(cmd.Context(), run)
			}

			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			tester, release, err := a.tester(db)
			if err != nil {
				return err
			}
			defer release()

			_, err = tester.Test(cmd.Context(), shieldtest.Request{
				Run:        run,
				OutputDir:  outputDir,
				ExportPath: export,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&env, "env", DefaultEvalEnv, "environment id")
	cmd.Flags().StringVar(&modelPath, "model_path", "", "path to the shielded policy")
	cmd.Flags().IntVar(&episodes, "episodes", eval.DefaultEpisodes, "number of evaluation episodes")
	cmd.Flags().BoolVar(&render, "render", false, "render the environment while evaluating")
	cmd.Flags().StringVar(&bridge, "bridge", "", "bridge address (default from config); empty runs "+orchestrator.ShieldScript)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the performance figure")
	cmd.Flags().StringVar(&dbPath, "db", "", "run history database; empty disables history")
	cmd.Flags().StringVar(&export, "export", "", "also write the run as a JSON fixture")
	_ = cmd.MarkFlagRequired("model_path")
	return cmd
}

// evaluateScript runs the shielded agent test as a python process. History,
// figures and fixtures are then left to the script.
func (a *app) evaluateScript(ctx context.Context, run eval.RunConfig) error {
	if err := run.Validate(); err != nil {
		return err
	}
	modelPath := run.ModelPath
	if !filepath.IsAbs(modelPath) {
		modelPath = filepath.Join(a.cfg.WorkDir, modelPath)
	}
	if err := eval.CheckModel(modelPath); err != nil {
		return err
	}
	args := []string{"--env", run.Env, "--model_path", run.ModelPath, "--episodes", strconv.Itoa(run.Episodes)}
	if run.Render {
		args = append(args, "--render")
	}
	script := &phase.Script{
		PhaseName:   orchestrator.PhaseTestShielded,
		File:        orchestrator.ShieldScript,
		Args:        args,
		Interpreter: a.interpreter(),
		Runner:      a.newRunner(a.logger),
	}
	if err := script.Run(ctx, phase.Target{Game: run.Env}); err != nil {
		return goerr.Wrap(err, "shielded agent test failed", goerr.Tag(phase.ErrTagPhaseFailed))
	}
	return nil
}
