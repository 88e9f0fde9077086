package eval

import (
	"github.com/m-mizutani/goerr/v2"
)

// DefaultEpisodes is the episode count used when none is given.
const DefaultEpisodes = 100

// #region run-config
// RunConfig describes one evaluation run. It is not modified once the
// harness has been built.
type RunConfig struct {
	Env       string
	ModelPath string
	Episodes  int
	Render    bool
}

// DefaultRunConfig returns a config for env with the default episode count.
func DefaultRunConfig(env, modelPath string) RunConfig {
	return RunConfig{
		Env:       env,
		ModelPath: modelPath,
		Episodes:  DefaultEpisodes,
	}
}

// Validate checks the fields the harness relies on.
func (c RunConfig) Validate() error {
	if c.Env == "" {
		return goerr.New("environment name is required")
	}
	if c.ModelPath == "" {
		return goerr.New("model path is required")
	}
	if c.Episodes <= 0 {
		return goerr.New("episode count must be positive", goerr.V("episodes", c.Episodes))
	}
	return nil
}

// #endregion run-config

// #region episode-outcome
// EpisodeOutcome is the record of one finished episode.
type EpisodeOutcome struct {
	Reward            float64 `json:"reward"`
	Length            int     `json:"length"`
	ShieldActivations int     `json:"shield_activations"`
}

// #endregion episode-outcome

// #region results
// Results holds per-episode measurements as three index-aligned sequences.
type Results struct {
	Rewards           []float64
	Lengths           []int
	ShieldActivations []int
}

func newResults(n int) Results {
	return Results{
		Rewards:           make([]float64, 0, n),
		Lengths:           make([]int, 0, n),
		ShieldActivations: make([]int, 0, n),
	}
}

func (r *Results) append(o EpisodeOutcome) {
	r.Rewards = append(r.Rewards, o.Reward)
	r.Lengths = append(r.Lengths, o.Length)
	r.ShieldActivations = append(r.ShieldActivations, o.ShieldActivations)
}

// Len returns the number of recorded episodes.
func (r Results) Len() int {
	return len(r.Rewards)
}

// Outcomes zips the three sequences back into per-episode records.
func (r Results) Outcomes() []EpisodeOutcome {
	out := make([]EpisodeOutcome, r.Len())
	for i := range out {
		out[i] = EpisodeOutcome{
			Reward:            r.Rewards[i],
			Length:            r.Lengths[i],
			ShieldActivations: r.ShieldActivations[i],
		}
	}
	return out
}

// FromOutcomes builds Results from per-episode records.
func FromOutcomes(outcomes []EpisodeOutcome) Results {
	r := newResults(len(outcomes))
	for _, o := range outcomes {
		r.append(o)
	}
	return r
}

// #endregion results
