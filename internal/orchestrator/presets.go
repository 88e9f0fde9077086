package orchestrator

import (
	"strconv"

	"github.com/danielpatrickdp/shine/go-controller/internal/phase"
)

// #region defaults

// DefaultGames are processed when no games are given.
var DefaultGames = []string{"PongNoFrameskip-v4", "BreakoutNoFrameskip-v4"}

// DefaultTrainGames are the short names the train pipeline uses by default.
var DefaultTrainGames = []string{"pong", "breakout"}

// DefaultPatterns are the trigger patterns of the full pipeline.
var DefaultPatterns = []string{"block", "cross", "equal", "rand0.2", "rand0.3", "4x4", "5x5"}

// TrainPattern is the only pattern the train pipeline uses.
const TrainPattern = "block"

// #endregion

// ShieldScript is run for the shielded agent test when no Tester is set.
const ShieldScript = "test_shielded_agent.py"

// Settings holds what the preset pipelines are built from.
type Settings struct {
	Interpreter phase.Interpreter
	Runner      phase.Runner
	// Tester evaluates in-process over the gym bridge. Nil runs ShieldScript.
	Tester    Tester
	Episodes  int
	OutputDir string
}

func (s Settings) script(name, file string) *phase.Script {
	return &phase.Script{
		PhaseName:   name,
		File:        file,
		Interpreter: s.Interpreter,
		Runner:      s.Runner,
	}
}

func (s Settings) shieldTest(modelPath string) phase.Phase {
	if s.Tester == nil {
		script := s.script(PhaseTestShielded, ShieldScript)
		script.Args = []string{"--env", "{game}", "--model_path", modelPath}
		if s.Episodes > 0 {
			script.Args = append(script.Args, "--episodes", strconv.Itoa(s.Episodes))
		}
		script.TitleFormat = "Testing shielded agent for {game}"
		script.SuccessFormat = "Shielded agent testing completed successfully"
		return script
	}
	return &ShieldTest{
		Tester:    s.Tester,
		ModelPath: modelPath,
		Episodes:  s.Episodes,
		WorkDir:   s.Interpreter.WorkDir,
		OutputDir: s.OutputDir,
	}
}

func baseDirs() []string {
	return []string{"agent/pong", "agent/breakout", "pretrained_models", "models"}
}

// #region presets

// Full runs detection, explanation, retraining, both evaluations and the
// shielded agent test for every game and pattern.
func Full(s Settings) Pipeline {
	dirs := baseDirs()
	for _, p := range DefaultPatterns {
		dirs = append(dirs, "trajs_"+p)
	}

	detect := s.script(PhaseDetect, "detection.py")
	detect.TitleFormat = "Running detection for {game} with {pattern} pattern"
	detect.SuccessFormat = "Detection completed successfully"

	explain := s.script(PhaseExplain, "explain.py")
	explain.TitleFormat = "Generating explanations for {game} with {pattern} pattern"
	explain.SuccessFormat = "Explanation generation completed successfully"

	retrain := s.script(PhaseRetrain, "retrain.py")
	retrain.TitleFormat = "Retraining model for {game} with {pattern} pattern"
	retrain.SuccessFormat = "Retraining completed successfully"

	poisoned := s.script(PhaseEvaluatePoisoned, "eval.py")
	poisoned.TitleFormat = "Evaluating {game} with {pattern} pattern in poisoned environment"
	poisoned.SuccessFormat = "Evaluation in poisoned environment completed successfully"

	clean := s.script(PhaseEvaluateClean, "eval.py")
	clean.NoPoison = true
	clean.TitleFormat = "Evaluating {game} with {pattern} pattern in clean environment"
	clean.SuccessFormat = "Evaluation in clean environment completed successfully"

	for _, sc := range []*phase.Script{detect, explain, retrain, poisoned, clean} {
		sc.LowerName = true
	}

	return Pipeline{
		Name:      "full",
		Dirs:      dirs,
		Downloads: DefaultGames,
		Phases: []phase.Phase{
			detect, explain, retrain, poisoned, clean,
			s.shieldTest("models/shielded_{short}_model"),
		},
	}
}

// Train retrains with the block pattern and evaluates the result.
func Train(s Settings) Pipeline {
	detect := s.script(PhaseDetect, "detection.py")
	detect.Dirs = []string{"trajs_{pattern}"}
	detect.TitleFormat = "Running detection for {game}"
	detect.SuccessFormat = "Detection completed successfully for {game}"

	explain := s.script(PhaseExplain, "explain.py")
	explain.TitleFormat = "Generating explanations for {game}"
	explain.SuccessFormat = "Explanation completed successfully for {game}"

	retrain := s.script(PhaseRetrain, "retrain.py")
	retrain.Mode = "ours"
	retrain.Dirs = []string{"agent/{short}"}
	retrain.TitleFormat = "Retraining model for {game}"
	retrain.SuccessFormat = "Retraining completed successfully for {game}"

	poisoned := s.script(PhaseEvaluatePoisoned, "eval.py")
	poisoned.TitleFormat = "Evaluating {game} in poisoned environment"
	poisoned.SuccessFormat = "Poisoned environment evaluation completed for {game}"

	clean := s.script(PhaseEvaluateClean, "eval.py")
	clean.NoPoison = true
	clean.TitleFormat = "Evaluating {game} in clean environment"
	clean.SuccessFormat = "Clean environment evaluation completed for {game}"

	return Pipeline{
		Name:   "train",
		Phases: []phase.Phase{detect, explain, retrain, poisoned, clean},
	}
}

// Test runs the shielded agent test against the retrained block model.
func Test(s Settings) Pipeline {
	return Pipeline{
		Name:   "test",
		Dirs:   []string{"models"},
		Phases: []phase.Phase{s.shieldTest("agent/{short}/block_{short}_retrain_ours.tar")},
	}
}

// Setup creates the working directories and downloads the pretrained models.
func Setup() Pipeline {
	return Pipeline{
		Name:      "setup",
		Dirs:      append(baseDirs(), "trajs_block"),
		Downloads: DefaultGames,
	}
}

// #endregion
