package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/report"
)

// #region fixture-tests

// TestFixture_PongShielded loads the recorded pong run and checks the summary
// derived from it. If the statistics change, this catches drift.
func TestFixture_PongShielded(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "pong_shielded.json"))
	require.NoError(t, err)
	assert.Equal(t, "PongNoFrameskip-v4", f.Env)

	res := f.ToResults()
	require.Equal(t, 5, res.Len())

	s, err := report.Summarize(res)
	require.NoError(t, err)
	assert.InDelta(t, 11.4, s.MeanReward, 1e-9)
	assert.InDelta(t, 0.6, s.SuccessRate, 1e-9)
	assert.InDelta(t, 2142.4, s.MeanLength, 1e-9)
	assert.Equal(t, 20, s.TotalShieldActivations)
	assert.InDelta(t, 4.0, s.MeanShieldActivations, 1e-9)
}

func TestSaveFixture_RoundTrip(t *testing.T) {
	res := eval.FromOutcomes([]eval.EpisodeOutcome{
		{Reward: 3, Length: 40, ShieldActivations: 1},
		{Reward: -1, Length: 12},
	})
	path := filepath.Join(t.TempDir(), "runs", "breakout.json")

	f := NewFixture("BreakoutNoFrameskip-v4", "agent/breakoutnoframeskip/block_breakoutnoframeskip_retrain_ours.tar", res)
	require.NoError(t, SaveFixture(path, f))

	got, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, f.Env, got.Env)
	assert.Equal(t, f.ModelPath, got.ModelPath)
	assert.Equal(t, res, got.ToResults())
}

func TestLoadFixture_Invalid(t *testing.T) {
	dir := t.TempDir()

	noEnv := filepath.Join(dir, "noenv.json")
	require.NoError(t, os.WriteFile(noEnv, []byte(`{"episodes": []}`), 0o644))
	_, err := LoadFixture(noEnv)
	assert.Error(t, err)

	negative := filepath.Join(dir, "neg.json")
	require.NoError(t, os.WriteFile(negative, []byte(`{"env": "x", "episodes": [{"reward": 1, "length": -2}]}`), 0o644))
	_, err = LoadFixture(negative)
	assert.Error(t, err)

	_, err = LoadFixture(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// #endregion fixture-tests
