package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/shine/go-controller/internal/gym"
)

// #region fakes
// scriptedEnv plays episodes whose lengths and per-step rewards are fixed up front.
type scriptedEnv struct {
	lengths []int
	reward  float64

	episode  int
	step     int
	resets   int
	renders  int
	closed   bool
	stepErr  error
	resetErr error
}

func (e *scriptedEnv) Reset(context.Context) (gym.Observation, error) {
	if e.resetErr != nil {
		return nil, e.resetErr
	}
	e.resets++
	e.step = 0
	return 0, nil
}

func (e *scriptedEnv) Step(_ context.Context, _ gym.Action) (gym.StepResult, error) {
	if e.stepErr != nil {
		return gym.StepResult{}, e.stepErr
	}
	e.step++
	limit := e.lengths[e.episode%len(e.lengths)]
	done := e.step >= limit
	if done {
		e.episode++
	}
	return gym.StepResult{Observation: e.step, Reward: e.reward, Done: done}, nil
}

func (e *scriptedEnv) Render(context.Context) error { e.renders++; return nil }
func (e *scriptedEnv) Close() error                 { e.closed = true; return nil }

type plainPolicy struct {
	predictions   int
	deterministic []bool
	closed        bool
}

func (p *plainPolicy) Predict(_ context.Context, _ gym.Observation, deterministic bool) (gym.Action, error) {
	p.predictions++
	p.deterministic = append(p.deterministic, deterministic)
	return 0, nil
}

func (p *plainPolicy) Close() error { p.closed = true; return nil }

// everyOtherShield reports an activation on every second prediction.
type everyOtherShield struct {
	plainPolicy
}

func (p *everyOtherShield) ShieldActivated() bool {
	return p.predictions%2 == 0
}

type fakeLoader struct {
	env    *scriptedEnv
	policy gym.Policy
	calls  int
}

func (l *fakeLoader) MakeEnv(context.Context, string, bool) (gym.Env, error) {
	l.calls++
	return l.env, nil
}

func (l *fakeLoader) LoadPolicy(context.Context, string) (gym.Policy, error) {
	l.calls++
	return l.policy, nil
}

func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.zip")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

// #endregion fakes

// 1. Output sequences always have exactly N entries.
func TestEvaluate_SequenceLengths(t *testing.T) {
	for _, n := range []int{1, 3, 17} {
		loader := &fakeLoader{env: &scriptedEnv{lengths: []int{2, 5}, reward: 1}, policy: &plainPolicy{}}
		cfg := RunConfig{Env: "PongNoFrameskip-v4", ModelPath: modelFile(t), Episodes: n}

		h, err := NewHarness(context.Background(), cfg, loader)
		require.NoError(t, err)

		res, err := h.Evaluate(context.Background())
		require.NoError(t, err)
		assert.Len(t, res.Rewards, n)
		assert.Len(t, res.Lengths, n)
		assert.Len(t, res.ShieldActivations, n)
		assert.Equal(t, n, loader.env.resets)
	}
}

// 2. Rewards and lengths accumulate per episode; actions are deterministic.
func TestEvaluate_AccumulatesPerEpisode(t *testing.T) {
	policy := &plainPolicy{}
	loader := &fakeLoader{env: &scriptedEnv{lengths: []int{2, 4}, reward: 0.5}, policy: policy}
	cfg := RunConfig{Env: "BreakoutNoFrameskip-v4", ModelPath: modelFile(t), Episodes: 2}

	h, err := NewHarness(context.Background(), cfg, loader)
	require.NoError(t, err)
	res, err := h.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []float64{1.0, 2.0}, res.Rewards)
	assert.Equal(t, []int{2, 4}, res.Lengths)
	assert.Equal(t, []int{0, 0}, res.ShieldActivations)
	for _, d := range policy.deterministic {
		assert.True(t, d)
	}
}

// 3. Shield activations are counted only when the policy exposes them.
func TestEvaluate_ShieldActivations(t *testing.T) {
	policy := &everyOtherShield{}
	loader := &fakeLoader{env: &scriptedEnv{lengths: []int{4}, reward: 1}, policy: policy}
	cfg := RunConfig{Env: "PongNoFrameskip-v4", ModelPath: modelFile(t), Episodes: 2}

	h, err := NewHarness(context.Background(), cfg, loader)
	require.NoError(t, err)
	res, err := h.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2}, res.ShieldActivations)
}

// 4. A missing model file fails before the loader is touched.
func TestNewHarness_ModelNotFound(t *testing.T) {
	loader := &fakeLoader{env: &scriptedEnv{lengths: []int{1}}, policy: &plainPolicy{}}
	cfg := RunConfig{
		Env:       "PongNoFrameskip-v4",
		ModelPath: filepath.Join(t.TempDir(), "missing.zip"),
		Episodes:  5,
	}

	h, err := NewHarness(context.Background(), cfg, loader)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.True(t, goerr.HasTag(err, ErrTagModelNotFound))
	assert.Zero(t, loader.calls)
	assert.Zero(t, loader.env.resets)
}

// 5. Invalid configs are rejected.
func TestRunConfig_Validate(t *testing.T) {
	assert.Error(t, RunConfig{ModelPath: "m", Episodes: 1}.Validate())
	assert.Error(t, RunConfig{Env: "e", Episodes: 1}.Validate())
	assert.Error(t, RunConfig{Env: "e", ModelPath: "m", Episodes: 0}.Validate())
	assert.NoError(t, DefaultRunConfig("e", "m").Validate())
	assert.Equal(t, DefaultEpisodes, DefaultRunConfig("e", "m").Episodes)
}

// 6. Environment errors propagate unchanged.
func TestEvaluate_PropagatesStepError(t *testing.T) {
	stepErr := errors.New("emulator crashed")
	loader := &fakeLoader{env: &scriptedEnv{lengths: []int{3}, stepErr: stepErr}, policy: &plainPolicy{}}
	cfg := RunConfig{Env: "PongNoFrameskip-v4", ModelPath: modelFile(t), Episodes: 3}

	h, err := NewHarness(context.Background(), cfg, loader)
	require.NoError(t, err)
	_, err = h.Evaluate(context.Background())
	assert.ErrorIs(t, err, stepErr)
}

// 7. Render is called once per step when requested; hooks see every episode.
func TestEvaluate_RenderAndHook(t *testing.T) {
	env := &scriptedEnv{lengths: []int{3}, reward: 1}
	loader := &fakeLoader{env: env, policy: &plainPolicy{}}
	cfg := RunConfig{Env: "PongNoFrameskip-v4", ModelPath: modelFile(t), Episodes: 2, Render: true}

	var seen []int
	h, err := NewHarness(context.Background(), cfg, loader, WithEpisodeHook(func(i int, o EpisodeOutcome) {
		seen = append(seen, i)
		assert.Equal(t, 3, o.Length)
	}))
	require.NoError(t, err)
	_, err = h.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, env.renders)
	assert.Equal(t, []int{0, 1}, seen)

	require.NoError(t, h.Close())
	assert.True(t, env.closed)
}

func TestResults_OutcomesRoundTrip(t *testing.T) {
	outcomes := []EpisodeOutcome{{Reward: 1, Length: 10}, {Reward: -1, Length: 4, ShieldActivations: 2}}
	res := FromOutcomes(outcomes)
	assert.Equal(t, 2, res.Len())
	assert.Equal(t, outcomes, res.Outcomes())
}
