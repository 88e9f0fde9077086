package main

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/shine/go-controller/internal/config"
	"github.com/danielpatrickdp/shine/go-controller/internal/console"
	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/gym"
	"github.com/danielpatrickdp/shine/go-controller/internal/logging"
	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
	"github.com/danielpatrickdp/shine/go-controller/internal/shieldtest"
	"github.com/danielpatrickdp/shine/go-controller/internal/store"
)

// loader is an eval.Loader holding a connection.
type loader interface {
	eval.Loader
	io.Closer
}

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	logger  *zap.Logger
	console *console.Printer
	stdout  io.Writer
	stderr  io.Writer

	// replaced in tests
	newRunner func(logger *zap.Logger) phase.Runner
	newLoader func(addr string) (loader, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout),
		logger:  zap.NewNop(),
		newRunner: func(logger *zap.Logger) phase.Runner {
			r := phase.NewExecRunner(logger)
			r.Stdout = stdout
			r.Stderr = stderr
			return r
		},
		newLoader: func(addr string) (loader, error) {
			return gym.NewClient(addr)
		},
	}
}

// #region execute
// execute runs the command line and maps the outcome to a process exit
// status: 0 on success, 1 on any failure.
func execute(ctx context.Context, a *app, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	defer func() { _ = a.logger.Sync() }()
	if err != nil {
		a.logger.Debug("command failed", zap.Error(err))
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// #endregion

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shine",
		Short:         "SHINE backdoor detection and repair pipeline controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(
		a.setupCmd(),
		a.runCmd(),
		a.trainCmd(),
		a.testCmd(),
		a.evaluateCmd(),
		a.reportCmd(),
		a.plotCmd(),
		a.inspectCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// #region wiring
func (a *app) interpreter() phase.Interpreter {
	return phase.Interpreter{
		Python:     a.cfg.Python,
		ScriptsDir: a.cfg.ScriptsDir,
		WorkDir:    a.cfg.WorkDir,
	}
}

// openStore opens the run history database. A nil store means history is
// disabled.
func (a *app) openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	s, err := store.NewStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// tester connects to the bridge and builds a shielded agent tester. The
// returned func releases the connection.
func (a *app) tester(db *store.Store) (*shieldtest.Tester, func(), error) {
	l, err := a.newLoader(a.cfg.Bridge.Addr)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to connect to bridge", goerr.V("addr", a.cfg.Bridge.Addr))
	}
	opts := []shieldtest.Option{shieldtest.WithOutput(a.stdout), shieldtest.WithLogger(a.logger)}
	if db != nil {
		opts = append(opts, shieldtest.WithRunSaver(db))
	}
	release := func() {
		if err := l.Close(); err != nil {
			a.logger.Warn("failed to close bridge connection", zap.Error(err))
		}
	}
	return shieldtest.New(l, opts...), release, nil
}

// #endregion
