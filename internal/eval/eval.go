package eval

import (
	"context"
	"errors"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/shine/go-controller/internal/gym"
)

// ErrTagModelNotFound marks errors caused by a missing policy file.
var ErrTagModelNotFound = goerr.NewTag("model_not_found")

// ErrModelNotFound is the sentinel wrapped when the policy file is absent.
var ErrModelNotFound = errors.New("model file not found")

// CheckModel fails with ErrModelNotFound when the policy file is absent.
func CheckModel(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return goerr.Wrap(ErrModelNotFound, "model file not found",
				goerr.V("model_path", path), goerr.Tag(ErrTagModelNotFound))
		}
		return goerr.Wrap(err, "failed to stat model file", goerr.V("model_path", path))
	}
	return nil
}

// Loader creates the environment and policy for a run. *gym.Client is the
// production implementation.
type Loader interface {
	MakeEnv(ctx context.Context, envID string, render bool) (gym.Env, error)
	LoadPolicy(ctx context.Context, modelPath string) (gym.Policy, error)
}

// #region options
// Option customizes a Harness.
type Option func(*Harness)

// WithEpisodeHook registers a callback invoked after every finished episode.
func WithEpisodeHook(hook func(index int, outcome EpisodeOutcome)) Option {
	return func(h *Harness) {
		h.onEpisode = hook
	}
}

// WithLogger sets the logger used for per-episode debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// #endregion options

// #region harness
// Harness runs a fixed policy for a fixed number of episodes.
type Harness struct {
	config    RunConfig
	env       gym.Env
	policy    gym.Policy
	onEpisode func(int, EpisodeOutcome)
	logger    *zap.Logger
}

// NewHarness validates config, checks that the model file exists, and then
// creates the environment and policy through loader. A missing model file
// fails before loader is used.
func NewHarness(ctx context.Context, config RunConfig, loader Loader, opts ...Option) (*Harness, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := CheckModel(config.ModelPath); err != nil {
		return nil, err
	}

	h := &Harness{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	env, err := loader.MakeEnv(ctx, config.Env, config.Render)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create environment", goerr.V("env", config.Env))
	}
	policy, err := loader.LoadPolicy(ctx, config.ModelPath)
	if err != nil {
		_ = env.Close()
		return nil, goerr.Wrap(err, "failed to load policy", goerr.V("model_path", config.ModelPath))
	}
	h.env = env
	h.policy = policy
	return h, nil
}

// Config returns the run configuration the harness was built with.
func (h *Harness) Config() RunConfig {
	return h.config
}

// Close releases the policy and the environment.
func (h *Harness) Close() error {
	return errors.Join(h.policy.Close(), h.env.Close())
}

// #endregion harness

// #region evaluate
type episodeState int

const (
	episodeRunning episodeState = iota
	episodeDone
)

// Evaluate runs config.Episodes episodes sequentially and returns their
// rewards, lengths and shield activation counts. The first environment or
// policy error aborts the run.
func (h *Harness) Evaluate(ctx context.Context) (Results, error) {
	results := newResults(h.config.Episodes)
	shield, hasShield := h.policy.(gym.Shielded)

	for i := 0; i < h.config.Episodes; i++ {
		obs, err := h.env.Reset(ctx)
		if err != nil {
			return Results{}, goerr.Wrap(err, "failed to reset environment", goerr.V("episode", i))
		}

		var outcome EpisodeOutcome
		for state := episodeRunning; state == episodeRunning; {
			if h.config.Render {
				if err := h.env.Render(ctx); err != nil {
					return Results{}, goerr.Wrap(err, "failed to render", goerr.V("episode", i))
				}
			}

			action, err := h.policy.Predict(ctx, obs, true)
			if err != nil {
				return Results{}, goerr.Wrap(err, "failed to predict action",
					goerr.V("episode", i), goerr.V("step", outcome.Length))
			}
			step, err := h.env.Step(ctx, action)
			if err != nil {
				return Results{}, goerr.Wrap(err, "failed to step environment",
					goerr.V("episode", i), goerr.V("step", outcome.Length))
			}

			outcome.Reward += step.Reward
			outcome.Length++
			if hasShield && shield.ShieldActivated() {
				outcome.ShieldActivations++
			}

			obs = step.Observation
			if step.Done {
				state = episodeDone
			}
		}

		results.append(outcome)
		h.logger.Debug("episode finished",
			zap.Int("episode", i),
			zap.Float64("reward", outcome.Reward),
			zap.Int("length", outcome.Length),
			zap.Int("shield_activations", outcome.ShieldActivations),
		)
		if h.onEpisode != nil {
			h.onEpisode(i, outcome)
		}
	}

	return results, nil
}

// #endregion evaluate
