package phase

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

// DefaultTailBytes is how much stderr is kept for error reports.
const DefaultTailBytes = 4096

// ExecRunner runs commands on the host. Output is streamed to Stdout and
// Stderr as the process writes it. There is no timeout; only ctx
// cancellation stops a running process.
type ExecRunner struct {
	Stdout    io.Writer
	Stderr    io.Writer
	TailBytes int
	Logger    *zap.Logger
}

// NewExecRunner streams child output to the current process's stdout and stderr.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		TailBytes: DefaultTailBytes,
		Logger:    logger,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tail := &tailBuffer{max: r.TailBytes}
	if tail.max <= 0 {
		tail.max = DefaultTailBytes
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdout = writerOrDiscard(r.Stdout)
	c.Stderr = io.MultiWriter(writerOrDiscard(r.Stderr), tail)

	logger.Debug("starting process", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir))
	err := c.Run()
	res := Result{StderrTail: tail.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		logger.Debug("process exited", zap.String("command", cmd.String()), zap.Int("exit_code", res.ExitCode))
		return res, nil
	}
	return res, goerr.Wrap(err, "failed to run process", goerr.V("command", cmd.String()))
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
