// Package replay stores evaluation runs as JSON fixtures so that summaries
// and figures can be regenerated without an environment bridge.
package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
)

// #region fixture-types

// Fixture is the top-level JSON structure of a recorded run.
type Fixture struct {
	Description string                `json:"description,omitempty"`
	Env         string                `json:"env"`
	ModelPath   string                `json:"model_path"`
	RecordedAt  time.Time             `json:"recorded_at,omitempty"`
	Episodes    []eval.EpisodeOutcome `json:"episodes"`
}

// #endregion fixture-types

// NewFixture records res for env and modelPath.
func NewFixture(env, modelPath string, res eval.Results) *Fixture {
	return &Fixture{
		Env:        env,
		ModelPath:  modelPath,
		RecordedAt: time.Now().UTC(),
		Episodes:   res.Outcomes(),
	}
}

// ToResults converts the recorded episodes back to harness output.
func (f *Fixture) ToResults() eval.Results {
	return eval.FromOutcomes(f.Episodes)
}

// Validate checks that the fixture names an environment and that every
// episode has a non-negative length and activation count.
func (f *Fixture) Validate() error {
	if f.Env == "" {
		return goerr.New("fixture has no env")
	}
	for i, ep := range f.Episodes {
		if ep.Length < 0 || ep.ShieldActivations < 0 {
			return goerr.New("invalid episode in fixture", goerr.V("episode", i),
				goerr.V("length", ep.Length), goerr.V("shield_activations", ep.ShieldActivations))
		}
	}
	return nil
}

// #region fixture-loader

// LoadFixture reads, parses and validates a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read fixture", goerr.V("path", path))
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(err, "failed to parse fixture", goerr.V("path", path))
	}
	if err := f.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid fixture", goerr.V("path", path))
	}
	return &f, nil
}

// SaveFixture writes f as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create fixture directory")
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal fixture")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write fixture", goerr.V("path", path))
	}
	return nil
}

// #endregion fixture-loader
