package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Empty(t, cfg.Bridge.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
python: /opt/venv/bin/python
scripts_dir: shine
bridge:
  addr: 10.0.0.5:50061
eval:
  episodes: 20
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/venv/bin/python", cfg.Python)
	assert.Equal(t, "shine", cfg.ScriptsDir)
	assert.Equal(t, "10.0.0.5:50061", cfg.Bridge.Addr)
	assert.Equal(t, 20, cfg.Eval.Episodes)
	// untouched sections keep defaults
	assert.Equal(t, "shine.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHINE_PYTHON", "python3.11")
	t.Setenv("SHINE_SCRIPTS_DIR", "/srv/shine")
	t.Setenv("SHINE_BRIDGE_ADDR", "bridge:1")
	t.Setenv("SHINE_DB", "")
	t.Setenv("SHINE_MODEL_SOURCE", "gs://models/ppo-{game}.zip")
	t.Setenv("SHINE_EPISODES", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "python3.11", cfg.Python)
	assert.Equal(t, "/srv/shine", cfg.ScriptsDir)
	assert.Equal(t, "bridge:1", cfg.Bridge.Addr)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, "gs://models/ppo-{game}.zip", cfg.Models.Source)
	assert.Equal(t, 7, cfg.Eval.Episodes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("python: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidEpisodesEnv(t *testing.T) {
	t.Setenv("SHINE_EPISODES", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Python = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Eval.Episodes = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shine.yaml")
	cfg := DefaultConfig()
	cfg.Python = "py"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
