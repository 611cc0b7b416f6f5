package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tmaze/internal/scape"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = orig
	})
	return &buf
}

func TestConfigCommandAppliesFileThenFlags(t *testing.T) {
	out := captureStdout(t)
	path := filepath.Join(t.TempDir(), "tmaze.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env:\n  zoom: 3\n  target_setting: switching\n"), 0o644))

	err := run(context.Background(), []string{"config", "-config", path, "-zoom", "4", "-obs", "both"})
	require.NoError(t, err)
	text := out.String()
	require.Contains(t, text, "zoom: 4")
	require.Contains(t, text, "target_setting: switching")
	require.Contains(t, text, "observation_mode: both")
}

func TestRunCommandPrintsEpisodes(t *testing.T) {
	out := captureStdout(t)
	err := run(context.Background(), []string{
		"run", "-obs", "proprio", "-agent", "idle", "-episodes", "2", "-max-steps", "5",
		"-artifacts-dir", t.TempDir(), "-log-level", "error",
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "episode=0 goals=[0 1] goal=-1 return=0.000 steps=5")
}

func TestCollectThenRunsAndExport(t *testing.T) {
	out := captureStdout(t)
	artifacts := t.TempDir()
	exportDir := t.TempDir()

	err := run(context.Background(), []string{
		"collect", "-obs", "proprio", "-agent", "random", "-workers", "2", "-episodes", "1", "-max-steps", "5",
		"-store", "memory", "-artifacts-dir", artifacts, "-log-level", "error",
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "episodes=2")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"runs", "-artifacts-dir", artifacts}))
	require.Contains(t, out.String(), "agent=random backend=planar workers=2 episodes=2")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"export", "-artifacts-dir", artifacts, "-latest", "-out", exportDir}))
	require.Contains(t, out.String(), "exported run_id=")
}

func TestRunsCommandEmpty(t *testing.T) {
	out := captureStdout(t)
	require.NoError(t, run(context.Background(), []string{"runs", "-artifacts-dir", t.TempDir()}))
	require.Equal(t, "no runs found\n", out.String())
}

func TestPlotCommandWritesArena(t *testing.T) {
	captureStdout(t)
	path := filepath.Join(t.TempDir(), "arena.png")
	require.NoError(t, run(context.Background(), []string{"plot", "-exit-lines", "-out", path}))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestEvaluateCommandJSON(t *testing.T) {
	out := captureStdout(t)
	err := run(context.Background(), []string{"evaluate", "-obs", "proprio", "-agent", "idle", "-mode", "validation", "-json", "-log-level", "error"})
	require.NoError(t, err)
	require.Contains(t, out.String(), `"timeout_runs": 4`)
}

func TestServePhysicsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, []string{"serve-physics", "-addr", "127.0.0.1:0", "-log-level", "error"}))
}

func TestRunRejectsBadInput(t *testing.T) {
	captureStdout(t)
	require.Error(t, run(context.Background(), nil))
	require.Error(t, run(context.Background(), []string{"train"}))
	require.Error(t, run(context.Background(), []string{"config", "-obs", "sonar"}))
	require.Error(t, run(context.Background(), []string{"config", "-target", "nearest"}))
	require.Error(t, run(context.Background(), []string{"run", "-agent", "neat", "-obs", "proprio"}))
	require.ErrorIs(t, run(context.Background(), []string{"run", "-agent", "waypoint-left", "-obs", "vision"}), scape.ErrProprioRequired)
	require.Error(t, run(context.Background(), []string{"collect", "-backend", "remote"}))
}
