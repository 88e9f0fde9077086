package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Interpreter locates the python executable and the pipeline scripts.
type Interpreter struct {
	Python     string
	ScriptsDir string
	// WorkDir is where scripts run and where relative directories are created.
	WorkDir string
}

// DefaultInterpreter runs scripts from the current directory with python.
func DefaultInterpreter() Interpreter {
	return Interpreter{Python: "python", ScriptsDir: ".", WorkDir: "."}
}

// Script is a phase implemented by a python script invoked as
// `<python> <scripts_dir>/<script> --name <game> --subname <pattern> [flags]`.
type Script struct {
	PhaseName string
	File      string
	// LowerName passes the game to --name lower-cased.
	LowerName bool
	NoPoison  bool
	Mode      string
	// Args replaces the --name/--subname layout when set. Each element is
	// expanded like Dirs.
	Args []string
	// Dirs are created before the script runs. They may reference
	// {game}, {name}, {short} and {pattern}.
	Dirs []string
	// TitleFormat and SuccessFormat are expanded like Dirs.
	TitleFormat   string
	SuccessFormat string

	Interpreter Interpreter
	Runner      Runner
}

// Name implements Phase.
func (s *Script) Name() string { return s.PhaseName }

// Title implements Describer.
func (s *Script) Title(t Target) string {
	if s.TitleFormat == "" {
		return fmt.Sprintf("Running %s for %s", s.PhaseName, t)
	}
	return t.Expand(s.TitleFormat)
}

// Success implements Describer.
func (s *Script) Success(t Target) string {
	if s.SuccessFormat == "" {
		return fmt.Sprintf("%s completed successfully", s.PhaseName)
	}
	return t.Expand(s.SuccessFormat)
}

// Command builds the process invocation for t.
func (s *Script) Command(t Target) Command {
	args := []string{filepath.Join(s.Interpreter.ScriptsDir, s.File)}
	if s.Args != nil {
		for _, a := range s.Args {
			args = append(args, t.Expand(a))
		}
		return Command{Path: s.Interpreter.Python, Args: args, Dir: s.Interpreter.WorkDir}
	}

	name := t.Game
	if s.LowerName {
		name = strings.ToLower(name)
	}
	args = append(args, "--name", name, "--subname", t.Pattern)
	if s.NoPoison {
		args = append(args, "--no_poison")
	}
	if s.Mode != "" {
		args = append(args, "--mode", s.Mode)
	}
	return Command{Path: s.Interpreter.Python, Args: args, Dir: s.Interpreter.WorkDir}
}

// Run creates the phase directories, runs the script and maps a non-zero
// exit to *Error.
func (s *Script) Run(ctx context.Context, t Target) error {
	for _, d := range s.Dirs {
		dir := filepath.Join(s.Interpreter.WorkDir, t.Expand(d))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Phase: s.PhaseName, Target: t,
				Err: goerr.Wrap(err, "failed to create directory", goerr.V("dir", dir))}
		}
	}

	cmd := s.Command(t)
	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return &Error{Phase: s.PhaseName, Target: t, Output: res.StderrTail, Err: err}
	}
	if res.ExitCode != 0 {
		return &Error{Phase: s.PhaseName, Target: t, ExitCode: res.ExitCode, Output: res.StderrTail}
	}
	return nil
}
