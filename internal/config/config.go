// Package config loads tmazectl settings from YAML or JSON files. Values
// not present in a file keep their defaults.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tmaze/internal/logging"
	"tmaze/internal/storage"
	"tmaze/internal/tmaze"
)

type Store struct {
	Kind       string `json:"kind" yaml:"kind"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

type Rollout struct {
	Agent             string `json:"agent" yaml:"agent"`
	Backend           string `json:"backend" yaml:"backend"`
	PhysicsURL        string `json:"physics_url,omitempty" yaml:"physics_url,omitempty"`
	Workers           int    `json:"workers" yaml:"workers"`
	EpisodesPerWorker int    `json:"episodes_per_worker" yaml:"episodes_per_worker"`
	MaxSteps          int    `json:"max_steps" yaml:"max_steps"`
}

type Config struct {
	Env          tmaze.Config `json:"env" yaml:"env"`
	Rollout      Rollout      `json:"rollout" yaml:"rollout"`
	Store        Store        `json:"store" yaml:"store"`
	ArtifactsDir string       `json:"artifacts_dir" yaml:"artifacts_dir"`
	LogLevel     string       `json:"log_level" yaml:"log_level"`
}

func Default() Config {
	return Config{
		Env: tmaze.DefaultConfig(),
		Rollout: Rollout{
			Agent:             "random",
			Backend:           "planar",
			Workers:           1,
			EpisodesPerWorker: 4,
			MaxSteps:          150,
		},
		Store: Store{
			Kind:       storage.DefaultStoreKind(),
			SQLitePath: "tmaze.db",
		},
		ArtifactsDir: "tmaze_runs",
		LogLevel:     logging.DefaultLevel,
	}
}

func LoadYAML(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode yaml config: %w", err)
	}
	return c, nil
}

func LoadJSON(r io.Reader) (Config, error) {
	c := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode json config: %w", err)
	}
	return c, nil
}

// Load reads path as JSON when it has a .json extension and as YAML otherwise.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		c, err = LoadJSON(bytes.NewReader(data))
	} else {
		c, err = LoadYAML(bytes.NewReader(data))
	}
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := c.Env.Validate(); err != nil {
		return err
	}
	if c.Rollout.Workers <= 0 {
		return fmt.Errorf("rollout workers must be > 0, got %d", c.Rollout.Workers)
	}
	if c.Rollout.EpisodesPerWorker <= 0 {
		return fmt.Errorf("rollout episodes per worker must be > 0, got %d", c.Rollout.EpisodesPerWorker)
	}
	if c.Rollout.MaxSteps <= 0 {
		return fmt.Errorf("rollout max steps must be > 0, got %d", c.Rollout.MaxSteps)
	}
	switch c.Rollout.Backend {
	case "planar":
	case "remote":
		if c.Rollout.PhysicsURL == "" {
			return fmt.Errorf("remote backend requires physics_url")
		}
	default:
		return fmt.Errorf("unsupported physics backend: %s", c.Rollout.Backend)
	}
	switch c.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Kind)
	}
	return nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
