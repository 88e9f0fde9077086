package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/models"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "shine.yaml"

// Config is the controller configuration.
type Config struct {
	// Python interpreter used to run the pipeline scripts.
	Python string `yaml:"python"`
	// ScriptsDir holds detection.py, explain.py, retrain.py and eval.py.
	ScriptsDir string `yaml:"scripts_dir"`
	// WorkDir is the directory scripts run in; pipeline directories are
	// created relative to it.
	WorkDir string `yaml:"work_dir"`

	Bridge  BridgeConfig  `yaml:"bridge"`
	Models  ModelsConfig  `yaml:"models"`
	Eval    EvalConfig    `yaml:"eval"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// BridgeConfig locates the environment/policy bridge service. An empty Addr
// runs the shielded agent test as a python script instead.
type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// ModelsConfig configures pretrained model downloads.
type ModelsConfig struct {
	// Source is a location template; {game} is replaced with the game id.
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
}

// EvalConfig holds evaluation defaults.
type EvalConfig struct {
	Episodes  int    `yaml:"episodes"`
	OutputDir string `yaml:"output_dir"`
}

// StoreConfig configures run history. An empty Path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Python:     "python",
		ScriptsDir: ".",
		WorkDir:    ".",
		Models:     ModelsConfig{Source: models.DefaultLocation, Dir: models.DefaultDir},
		Eval:       EvalConfig{Episodes: eval.DefaultEpisodes, OutputDir: "."},
		Store:      StoreConfig{Path: "shine.db"},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse config", goerr.V("path", path))
		}
	case os.IsNotExist(err):
	default:
		return nil, goerr.Wrap(err, "failed to read config", goerr.V("path", path))
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write config", goerr.V("path", path))
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SHINE_PYTHON"); v != "" {
		c.Python = v
	}
	if v := os.Getenv("SHINE_SCRIPTS_DIR"); v != "" {
		c.ScriptsDir = v
	}
	if v := os.Getenv("SHINE_BRIDGE_ADDR"); v != "" {
		c.Bridge.Addr = v
	}
	if v, ok := os.LookupEnv("SHINE_DB"); ok {
		c.Store.Path = v
	}
	if v := os.Getenv("SHINE_MODEL_SOURCE"); v != "" {
		c.Models.Source = v
	}
	if v := os.Getenv("SHINE_EPISODES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return goerr.Wrap(err, "invalid SHINE_EPISODES", goerr.V("value", v))
		}
		c.Eval.Episodes = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Python == "" {
		return goerr.New("python interpreter not configured (set python or SHINE_PYTHON)")
	}
	if c.Eval.Episodes <= 0 {
		return goerr.New("episode count must be positive", goerr.V("episodes", c.Eval.Episodes))
	}
	return nil
}
