package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tmaze/internal/tmaze"
)

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	c, err := LoadYAML(strings.NewReader(`
env:
  observation_mode: both
  zoom: 3
  reward_scales: [1000, 250]
  target_setting: switching
rollout:
  workers: 4
store:
  kind: memory
`))
	require.NoError(t, err)
	require.Equal(t, tmaze.ObserveBoth, c.Env.ObservationMode)
	require.Equal(t, 3.0, c.Env.Zoom)
	require.Equal(t, []float64{1000, 250}, c.Env.RewardScales)
	require.Equal(t, "switching", c.Env.TargetSetting)
	require.Equal(t, 4, c.Rollout.Workers)
	// untouched keys keep defaults
	require.Equal(t, tmaze.DefaultActionRepeats, c.Env.ActionRepeats)
	require.Equal(t, 150, c.Rollout.MaxSteps)
	require.NoError(t, c.Validate())
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("env:\n  zooom: 2\n"))
	require.Error(t, err)
}

func TestLoadYAMLEmptyDocumentIsDefault(t *testing.T) {
	c, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "tmaze.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"env":{"action_repeats":3},"log_level":"debug"}`), 0o644))
	c, err := Load(jsonPath)
	require.NoError(t, err)
	require.Equal(t, 3, c.Env.ActionRepeats)
	require.Equal(t, "debug", c.LogLevel)

	yamlPath := filepath.Join(dir, "tmaze.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("env:\n  target_setting: nearest\n"), 0o644))
	_, err = Load(yamlPath)
	require.Error(t, err)

	c, err = Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestValidateBackends(t *testing.T) {
	c := Default()
	c.Rollout.Backend = "remote"
	require.Error(t, c.Validate())
	c.Rollout.PhysicsURL = "ws://127.0.0.1:8765/physics"
	require.NoError(t, c.Validate())

	c.Store.Kind = "postgres"
	require.Error(t, c.Validate())
}

func TestYAMLRoundTrip(t *testing.T) {
	c := Default()
	c.Env.Seed = 42
	data, err := c.YAML()
	require.NoError(t, err)
	require.Contains(t, string(data), "observation_mode: vision")

	loaded, err := LoadYAML(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}
