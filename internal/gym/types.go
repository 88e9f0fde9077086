package gym

import "context"

// #region values
// Observation is produced by an Env and consumed by a Policy. The controller
// never looks inside it.
type Observation any

// Action is produced by a Policy and fed back into an Env.
type Action any

// StepResult is the outcome of a single environment step.
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Info        map[string]any
}

// #endregion values

// #region contracts
// Env is a resettable, steppable environment instance.
type Env interface {
	Reset(ctx context.Context) (Observation, error)
	Step(ctx context.Context, action Action) (StepResult, error)
	Render(ctx context.Context) error
	Close() error
}

// Policy maps observations to actions.
type Policy interface {
	Predict(ctx context.Context, obs Observation, deterministic bool) (Action, error)
	Close() error
}

// Shielded is implemented by policies that expose a shield intervention
// signal. ShieldActivated reports whether the shield fired on the most recent
// Predict call.
type Shielded interface {
	Policy
	ShieldActivated() bool
}

// #endregion contracts
