package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"tmaze/internal/config"
	"tmaze/internal/logging"
	"tmaze/internal/storage"
	"tmaze/internal/tmaze"
	tmazeapi "tmaze/pkg/tmaze"
)

// commonFlags are shared by every command that builds an environment or
// touches the store. Explicitly set flags override the config file.
type commonFlags struct {
	configPath   string
	logLevel     string
	storeKind    string
	dbPath       string
	artifactsDir string
	backend      string
	physicsURL   string
	observation  string
	target       string
	zoom         float64
	jitter       float64
	punishment   float64
	seed         uint64
	repeats      int
	depth        bool
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	def := config.Default()
	fs.StringVar(&f.configPath, "config", "", "YAML or JSON config file")
	fs.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&f.storeKind, "store", def.Store.Kind, "store backend: memory|sqlite")
	fs.StringVar(&f.dbPath, "db-path", def.Store.SQLitePath, "sqlite database path")
	fs.StringVar(&f.artifactsDir, "artifacts-dir", def.ArtifactsDir, "run artifacts directory")
	fs.StringVar(&f.backend, "backend", def.Rollout.Backend, "physics backend: planar|remote")
	fs.StringVar(&f.physicsURL, "physics-url", "", "websocket url of a remote physics server")
	fs.StringVar(&f.observation, "obs", string(def.Env.ObservationMode), "observation mode: proprioceptive|vision|both")
	fs.StringVar(&f.target, "target", def.Env.TargetSetting, "target setting: either|switching|random")
	fs.Float64Var(&f.zoom, "zoom", def.Env.Zoom, "maze zoom coefficient")
	fs.Float64Var(&f.jitter, "jitter", def.Env.InitPositionRandomness, "start position randomness")
	fs.Float64Var(&f.punishment, "collision-punishment", def.Env.CollisionPunishment, "reward subtracted on collision")
	fs.Uint64Var(&f.seed, "seed", def.Env.Seed, "environment seed")
	fs.IntVar(&f.repeats, "repeats", def.Env.ActionRepeats, "physics sub-steps per action")
	fs.BoolVar(&f.depth, "depth", def.Env.ReturnDepth, "append a depth channel to vision")
	return f
}

func (f *commonFlags) resolve(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	var visitErr error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "store":
			cfg.Store.Kind = f.storeKind
		case "db-path":
			cfg.Store.SQLitePath = f.dbPath
		case "artifacts-dir":
			cfg.ArtifactsDir = f.artifactsDir
		case "backend":
			cfg.Rollout.Backend = f.backend
		case "physics-url":
			cfg.Rollout.PhysicsURL = f.physicsURL
		case "obs":
			mode, err := tmaze.ParseObservationMode(f.observation)
			if err != nil {
				visitErr = err
				return
			}
			cfg.Env.ObservationMode = mode
		case "target":
			cfg.Env.TargetSetting = f.target
		case "zoom":
			cfg.Env.Zoom = f.zoom
		case "jitter":
			cfg.Env.InitPositionRandomness = f.jitter
		case "collision-punishment":
			cfg.Env.CollisionPunishment = f.punishment
		case "seed":
			cfg.Env.Seed = f.seed
		case "repeats":
			cfg.Env.ActionRepeats = f.repeats
		case "depth":
			cfg.Env.ReturnDepth = f.depth
		}
	})
	if visitErr != nil {
		return config.Config{}, visitErr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newClient(cfg config.Config) (*tmazeapi.Client, *zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = storage.DefaultStoreKind()
	}
	client, err := tmazeapi.New(tmazeapi.Options{
		StoreKind:    cfg.Store.Kind,
		DBPath:       cfg.Store.SQLitePath,
		ArtifactsDir: cfg.ArtifactsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	return client, logger, nil
}

func backendOf(cfg config.Config) tmazeapi.Backend {
	return tmazeapi.Backend{Kind: cfg.Rollout.Backend, URL: cfg.Rollout.PhysicsURL}
}
