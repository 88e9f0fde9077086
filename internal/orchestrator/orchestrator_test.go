package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/shine/go-controller/internal/console"
	"github.com/danielpatrickdp/shine/go-controller/internal/logging"
	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
	"github.com/danielpatrickdp/shine/go-controller/internal/shieldtest"
	"github.com/danielpatrickdp/shine/go-controller/internal/store"
)

// #region fakes

// scriptRunner records invocations and fails scripts listed in failing.
type scriptRunner struct {
	commands []phase.Command
	failing  map[string]int
}

func (r *scriptRunner) Run(_ context.Context, cmd phase.Command) (phase.Result, error) {
	r.commands = append(r.commands, cmd)
	if code, ok := r.failing[filepath.Base(cmd.Args[0])]; ok {
		return phase.Result{ExitCode: code, StderrTail: "Traceback (most recent call last)"}, nil
	}
	return phase.Result{}, nil
}

func (r *scriptRunner) scripts() []string {
	out := make([]string, len(r.commands))
	for i, c := range r.commands {
		out[i] = filepath.Base(c.Args[0])
	}
	return out
}

type fakeTester struct {
	requests []shieldtest.Request
	err      error
}

func (f *fakeTester) Test(_ context.Context, req shieldtest.Request) (*shieldtest.Outcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &shieldtest.Outcome{}, nil
}

type fakeDownloader struct {
	games []string
	err   error
}

func (d *fakeDownloader) Fetch(_ context.Context, game string) (string, error) {
	d.games = append(d.games, game)
	if d.err != nil {
		return "", d.err
	}
	return filepath.Join("pretrained_models", game+".zip"), nil
}

// tracePhase appends "<game>/<pattern>/<name>" to a shared trace.
type tracePhase struct {
	name  string
	trace *[]string
}

func (p *tracePhase) Name() string { return p.name }
func (p *tracePhase) Run(_ context.Context, t phase.Target) error {
	*p.trace = append(*p.trace, t.Game+"/"+t.Pattern+"/"+p.name)
	return nil
}

func settings(work string, runner phase.Runner, tester Tester) Settings {
	return Settings{
		Interpreter: phase.Interpreter{Python: "python", ScriptsDir: ".", WorkDir: work},
		Runner:      runner,
		Tester:      tester,
		Episodes:    5,
		OutputDir:   work,
	}
}

// #endregion

// 1. A failing detection stops the pipeline: nothing else runs and the error
// carries the phase failure.
func TestRun_DetectFailureAborts(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{failing: map[string]int{"detection.py": 1}}
	tester := &fakeTester{}
	db, err := store.NewStore(filepath.Join(t.TempDir(), "shine.db"))
	require.NoError(t, err)
	defer db.Close()

	var out bytes.Buffer
	o := New(WithWorkDir(work), WithDownloader(&fakeDownloader{}), WithPhaseLog(db.DB()), WithConsole(console.New(&out)))

	err = o.Run(context.Background(), Full(settings(work, runner, tester)), []string{"pong"}, []string{"block"})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, phase.ErrTagPhaseFailed))

	var perr *phase.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseDetect, perr.Phase)
	assert.Equal(t, 1, perr.ExitCode)

	assert.Equal(t, []string{"detection.py"}, runner.scripts())
	assert.Empty(t, tester.requests)
	assert.Contains(t, out.String(), "✗ detect failed")
	assert.NotContains(t, out.String(), "Pipeline completed")
}

// 2. Two games and two patterns run every phase in order, games outermost.
func TestRun_Ordering(t *testing.T) {
	var trace []string
	p := Pipeline{
		Name:   "trace",
		Phases: []phase.Phase{&tracePhase{"a", &trace}, &tracePhase{"b", &trace}},
	}
	o := New(WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), p, []string{"g1", "g2"}, []string{"p1", "p2"}))
	assert.Equal(t, []string{
		"g1/p1/a", "g1/p1/b",
		"g1/p2/a", "g1/p2/b",
		"g2/p1/a", "g2/p1/b",
		"g2/p2/a", "g2/p2/b",
	}, trace)
}

// 3. The full pipeline creates its directories, downloads both games and
// runs the scripts and the shielded test with the expected arguments.
func TestRun_FullPipeline(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{}
	tester := &fakeTester{}
	dl := &fakeDownloader{}
	o := New(WithWorkDir(work), WithDownloader(dl), WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), Full(settings(work, runner, tester)),
		[]string{"PongNoFrameskip-v4"}, []string{"cross"}))

	for _, d := range []string{"agent/pong", "agent/breakout", "pretrained_models", "models", "trajs_block", "trajs_5x5", "trajs_rand0.2"} {
		assert.DirExists(t, filepath.Join(work, d))
	}
	assert.Equal(t, DefaultGames, dl.games)

	assert.Equal(t, []string{"detection.py", "explain.py", "retrain.py", "eval.py", "eval.py"}, runner.scripts())
	assert.Equal(t, []string{"detection.py", "--name", "pongnoframeskip-v4", "--subname", "cross"}, runner.commands[0].Args)
	assert.Equal(t, "--no_poison", runner.commands[4].Args[len(runner.commands[4].Args)-1])
	assert.NotContains(t, runner.commands[3].Args, "--no_poison")

	require.Len(t, tester.requests, 1)
	req := tester.requests[0]
	assert.Equal(t, "PongNoFrameskip-v4", req.Run.Env)
	assert.Equal(t, filepath.Join(work, "models", "shielded_pongnoframeskip_model"), req.Run.ModelPath)
	assert.Equal(t, 5, req.Run.Episodes)
}

// 4. A download failure is fatal and no phase runs.
func TestRun_DownloadFailure(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{}
	boom := errors.New("404 not found")
	o := New(WithWorkDir(work), WithDownloader(&fakeDownloader{err: boom}), WithConsole(console.Discard()))

	err := o.Run(context.Background(), Full(settings(work, runner, &fakeTester{})), []string{"pong"}, []string{"block"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, runner.commands)
}

func TestRun_ShieldTestFailure(t *testing.T) {
	work := t.TempDir()
	boom := errors.New("model file not found")
	o := New(WithWorkDir(work), WithConsole(console.Discard()))

	err := o.Run(context.Background(), Test(settings(work, &scriptRunner{}, &fakeTester{err: boom})),
		[]string{"PongNoFrameskip-v4", "BreakoutNoFrameskip-v4"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, goerr.HasTag(err, phase.ErrTagPhaseFailed))
}

func TestTrainPipeline(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{}
	o := New(WithWorkDir(work), WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), Train(settings(work, runner, nil)),
		[]string{"pong"}, []string{TrainPattern}))

	assert.DirExists(t, filepath.Join(work, "trajs_block"))
	assert.DirExists(t, filepath.Join(work, "agent", "pong"))
	assert.Equal(t, []string{"detection.py", "explain.py", "retrain.py", "eval.py", "eval.py"}, runner.scripts())
	assert.Equal(t, []string{"retrain.py", "--name", "pong", "--subname", "block", "--mode", "ours"}, runner.commands[2].Args)
}

// Without a bridge tester the shielded test runs as a script.
func TestRun_ShieldScriptFallback(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{}
	o := New(WithWorkDir(work), WithDownloader(&fakeDownloader{}), WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), Full(settings(work, runner, nil)),
		[]string{"PongNoFrameskip-v4"}, []string{"block"}))

	require.Len(t, runner.commands, 6)
	assert.Equal(t, []string{
		ShieldScript,
		"--env", "PongNoFrameskip-v4",
		"--model_path", "models/shielded_pongnoframeskip_model",
		"--episodes", "5",
	}, runner.commands[5].Args)
	assert.Equal(t, work, runner.commands[5].Dir)

	runner = &scriptRunner{}
	require.NoError(t, o.Run(context.Background(), Test(settings(work, runner, nil)),
		[]string{"BreakoutNoFrameskip-v4"}, nil))
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "agent/breakoutnoframeskip/block_breakoutnoframeskip_retrain_ours.tar", runner.commands[0].Args[4])
}

func TestRun_ShieldScriptFailure(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{failing: map[string]int{ShieldScript: 1}}
	o := New(WithWorkDir(work), WithConsole(console.Discard()))

	err := o.Run(context.Background(), Test(settings(work, runner, nil)), []string{"PongNoFrameskip-v4"}, nil)
	var perr *phase.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseTestShielded, perr.Phase)
	assert.Equal(t, 1, perr.ExitCode)
}

// The train pipeline passes game names through unchanged.
func TestTrainPipeline_KeepsGameCase(t *testing.T) {
	work := t.TempDir()
	runner := &scriptRunner{}
	o := New(WithWorkDir(work), WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), Train(settings(work, runner, nil)),
		[]string{"Pong"}, []string{TrainPattern}))
	assert.Equal(t, []string{"detection.py", "--name", "Pong", "--subname", "block"}, runner.commands[0].Args)
}

func TestTestPipeline(t *testing.T) {
	work := t.TempDir()
	tester := &fakeTester{}
	o := New(WithWorkDir(work), WithConsole(console.Discard()))

	require.NoError(t, o.Run(context.Background(), Test(settings(work, nil, tester)),
		[]string{"PongNoFrameskip-v4"}, nil))

	assert.DirExists(t, filepath.Join(work, "models"))
	require.Len(t, tester.requests, 1)
	assert.Equal(t,
		filepath.Join(work, "agent", "pongnoframeskip", "block_pongnoframeskip_retrain_ours.tar"),
		tester.requests[0].Run.ModelPath)
}

func TestSetupPipeline(t *testing.T) {
	work := t.TempDir()
	dl := &fakeDownloader{}
	var out bytes.Buffer
	o := New(WithWorkDir(work), WithDownloader(dl), WithConsole(console.New(&out)))

	require.NoError(t, o.Run(context.Background(), Setup(), nil, nil))
	assert.DirExists(t, filepath.Join(work, "trajs_block"))
	assert.NoDirExists(t, filepath.Join(work, "trajs_cross"))
	assert.Equal(t, DefaultGames, dl.games)
	assert.Contains(t, out.String(), "✓ Successfully downloaded PongNoFrameskip-v4 model")
	assert.Empty(t, Setup().Phases)
}

func TestRun_DownloadsWithoutDownloader(t *testing.T) {
	o := New(WithWorkDir(t.TempDir()), WithConsole(console.Discard()))
	assert.Error(t, o.Run(context.Background(), Setup(), nil, nil))
}

// 5. Phase outcomes land in the phase log.
func TestRun_PhaseLog(t *testing.T) {
	db, err := store.NewStore(filepath.Join(t.TempDir(), "shine.db"))
	require.NoError(t, err)
	defer db.Close()

	work := t.TempDir()
	runner := &scriptRunner{failing: map[string]int{"retrain.py": 2}}
	o := New(WithWorkDir(work), WithPhaseLog(db.DB()), WithConsole(console.Discard()))

	err = o.Run(context.Background(), Train(settings(work, runner, nil)), []string{"breakout"}, []string{TrainPattern})
	require.Error(t, err)

	var count int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM phase_log`).Scan(&count))
	require.Equal(t, 3, count)

	var pipelineID string
	require.NoError(t, db.DB().QueryRow(`SELECT pipeline_id FROM phase_log LIMIT 1`).Scan(&pipelineID))
	entries, err := db.ListPhases(pipelineID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, logging.StatusOK, entries[0].Status)
	assert.Equal(t, PhaseRetrain, entries[2].Phase)
	assert.Equal(t, logging.StatusFailed, entries[2].Status)
	assert.Equal(t, 2, entries[2].ExitCode)
	assert.Equal(t, "Traceback (most recent call last)", entries[2].Output)
	assert.Equal(t, "train", entries[2].Pipeline)
}

func TestPipeline_PhaseNames(t *testing.T) {
	assert.Equal(t, []string{
		PhaseDetect, PhaseExplain, PhaseRetrain, PhaseEvaluatePoisoned, PhaseEvaluateClean, PhaseTestShielded,
	}, Full(Settings{}).PhaseNames())
}
