package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
)

// ErrTagEmptyResults marks summaries requested for runs without episodes.
var ErrTagEmptyResults = goerr.NewTag("empty_results")

// ErrEmptyResults is returned when statistics are requested over zero episodes.
var ErrEmptyResults = errors.New("no episodes to summarize")

// #region summary
// Summary is derived from a run's results and never stored by the harness.
type Summary struct {
	Episodes               int     `json:"episodes"`
	MeanReward             float64 `json:"mean_reward"`
	SuccessRate            float64 `json:"success_rate"`
	MeanLength             float64 `json:"mean_length"`
	TotalShieldActivations int     `json:"total_shield_activations"`
	MeanShieldActivations  float64 `json:"mean_shield_activations"`
}

// HasShieldActivity reports whether any episode recorded a shield activation.
func (s Summary) HasShieldActivity() bool {
	return s.TotalShieldActivations > 0
}

// Summarize computes aggregate statistics over res.
func Summarize(res eval.Results) (Summary, error) {
	n := res.Len()
	if n == 0 {
		return Summary{}, goerr.Wrap(ErrEmptyResults, "cannot summarize run", goerr.Tag(ErrTagEmptyResults))
	}

	successes := 0
	for _, r := range res.Rewards {
		if r > 0 {
			successes++
		}
	}

	lengths := make([]float64, n)
	activations := make([]float64, n)
	total := 0
	for i := 0; i < n; i++ {
		lengths[i] = float64(res.Lengths[i])
		activations[i] = float64(res.ShieldActivations[i])
		total += res.ShieldActivations[i]
	}

	return Summary{
		Episodes:               n,
		MeanReward:             stat.Mean(res.Rewards, nil),
		SuccessRate:            float64(successes) / float64(n),
		MeanLength:             stat.Mean(lengths, nil),
		TotalShieldActivations: total,
		MeanShieldActivations:  stat.Mean(activations, nil),
	}, nil
}

// #endregion summary

// #region print
// WriteSummary prints the statistics block shown after an evaluation run.
// Shield lines are only printed when an activation occurred.
func WriteSummary(w io.Writer, env string, s Summary) error {
	lines := []string{
		fmt.Sprintf("\n%s Statistics:", env),
		fmt.Sprintf("Average Reward: %.2f", s.MeanReward),
		fmt.Sprintf("Success Rate: %.2f%%", s.SuccessRate*100),
		fmt.Sprintf("Average Episode Length: %.2f", s.MeanLength),
	}
	if s.HasShieldActivity() {
		lines = append(lines,
			fmt.Sprintf("Total Shield Activations: %d", s.TotalShieldActivations),
			fmt.Sprintf("Average Shield Activations per Episode: %.2f", s.MeanShieldActivations),
		)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return goerr.Wrap(err, "failed to write summary")
		}
	}
	return nil
}

// #endregion print
