package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrTagPhaseFailed marks errors raised by a failing pipeline phase.
var ErrTagPhaseFailed = goerr.NewTag("phase_failed")

// Target is one (game, pattern) pair processed by a pipeline.
type Target struct {
	Game    string
	Pattern string
}

// Short is the lower-cased game name up to the first '-'.
// "PongNoFrameskip-v4" becomes "pongnoframeskip".
func (t Target) Short() string {
	return ShortName(t.Game)
}

func (t Target) String() string {
	if t.Pattern == "" {
		return t.Game
	}
	return t.Game + "/" + t.Pattern
}

// ShortName lower-cases game and cuts it at the first '-'.
func ShortName(game string) string {
	short, _, _ := strings.Cut(strings.ToLower(game), "-")
	return short
}

// Expand substitutes {game}, {name}, {short} and {pattern} in s.
func (t Target) Expand(s string) string {
	return strings.NewReplacer(
		"{game}", t.Game,
		"{name}", strings.ToLower(t.Game),
		"{short}", t.Short(),
		"{pattern}", t.Pattern,
	).Replace(s)
}

// Phase is one step of a pipeline run against a target.
type Phase interface {
	Name() string
	Run(ctx context.Context, target Target) error
}

// Describer is implemented by phases that provide their own status lines.
type Describer interface {
	Title(target Target) string
	Success(target Target) string
}

// #region runner
// Command is a process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	// StderrTail holds the last bytes written to stderr.
	StderrTail string
}

// Runner starts a command and blocks until it exits. A non-zero exit is
// reported through Result.ExitCode, not as an error; errors mean the process
// could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// #endregion runner

// #region error
// Error is returned when a phase fails.
type Error struct {
	Phase    string
	Target   Target
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("phase %s failed for %s", e.Phase, e.Target)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// #endregion error
