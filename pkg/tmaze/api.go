package tmaze

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"tmaze/internal/maze"
	"tmaze/internal/mazeplot"
	"tmaze/internal/model"
	"tmaze/internal/physics"
	"tmaze/internal/physics/planar"
	"tmaze/internal/physics/remote"
	"tmaze/internal/rollout"
	"tmaze/internal/scape"
	"tmaze/internal/stats"
	"tmaze/internal/storage"
	tmazeenv "tmaze/internal/tmaze"
)

const (
	defaultArtifactsDir = "tmaze_runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "tmaze.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.Logger
}

type Client struct {
	store  storage.Store
	logger *zap.Logger

	initOnce sync.Once
	initErr  error

	artifactsDir string
	exportsDir   string
}

// Backend selects the simulator behind an environment.
type Backend struct {
	// Kind is "planar" or "remote".
	Kind string
	// URL is the websocket endpoint of a remote physics server.
	URL string
}

type CollectRequest struct {
	Env               tmazeenv.Config
	Backend           Backend
	Agent             string
	Workers           int
	EpisodesPerWorker int
	MaxSteps          int
}

type CollectSummary struct {
	Run          model.RunRecord
	Summary      stats.EpisodeSummary
	ArtifactsDir string
}

type EvaluateRequest struct {
	Env     tmazeenv.Config
	Backend Backend
	Agent   string
	Mode    string
}

type EvaluateSummary struct {
	Agent   string
	Mode    string
	Fitness float64
	Trace   scape.Trace
}

type RunsRequest struct {
	Limit int
}

type EpisodesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type PlotRequest struct {
	Zoom      float64
	RunID     string
	Latest    bool
	Episode   int
	ExitLines bool
	Out       string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// SimulatorFactory returns a constructor for the backend's simulators.
func SimulatorFactory(ctx context.Context, backend Backend, renderMode string) (scape.SimulatorFactory, error) {
	mode, err := physics.ParseMode(renderMode)
	if err != nil {
		return nil, err
	}
	switch backend.Kind {
	case "", "planar":
		return func() (physics.Simulator, error) {
			return planar.New(mode)
		}, nil
	case "remote":
		if backend.URL == "" {
			return nil, errors.New("remote backend requires a url")
		}
		return func() (physics.Simulator, error) {
			return remote.Dial(ctx, backend.URL)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported physics backend: %s", backend.Kind)
	}
}

// NewEnv builds a single environment on the given backend.
func (c *Client) NewEnv(ctx context.Context, cfg tmazeenv.Config, backend Backend) (*tmazeenv.Env, error) {
	factory, err := SimulatorFactory(ctx, backend, cfg.RenderMode)
	if err != nil {
		return nil, err
	}
	sim, err := factory()
	if err != nil {
		return nil, err
	}
	env, err := tmazeenv.New(cfg, sim, tmazeenv.WithLogger(c.logger))
	if err != nil {
		_ = sim.Close()
		return nil, err
	}
	return env, nil
}

// Collect runs a parallel rollout, persists the run and its episodes and
// writes the run artifacts.
func (c *Client) Collect(ctx context.Context, req CollectRequest) (CollectSummary, error) {
	if req.Agent == "" {
		req.Agent = "random"
	}
	if req.Backend.Kind == "" {
		req.Backend.Kind = "planar"
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	if req.EpisodesPerWorker <= 0 {
		req.EpisodesPerWorker = 4
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 150
	}
	sample, err := scape.NewAgentByName(req.Agent, req.Env.Zoom, req.Env.Seed)
	if err != nil {
		return CollectSummary{}, err
	}
	if err := scape.CheckObservationMode(sample, req.Env.ObservationMode); err != nil {
		return CollectSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return CollectSummary{}, err
	}
	factory, err := SimulatorFactory(ctx, req.Backend, req.Env.RenderMode)
	if err != nil {
		return CollectSummary{}, err
	}

	result, err := rollout.Collect(ctx, rollout.Request{
		Config:       req.Env,
		NewSimulator: factory,
		NewAgent: func(worker int) (scape.StepAgent, error) {
			return scape.NewAgentByName(req.Agent, req.Env.Zoom, req.Env.Seed+uint64(worker))
		},
		AgentName:         req.Agent,
		Backend:           req.Backend.Kind,
		Workers:           req.Workers,
		EpisodesPerWorker: req.EpisodesPerWorker,
		MaxSteps:          req.MaxSteps,
		Logger:            c.logger,
	})
	if err != nil {
		return CollectSummary{}, err
	}

	if err := c.store.SaveRun(ctx, result.Run); err != nil {
		return CollectSummary{}, fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveEpisodes(ctx, result.Run.ID, result.Episodes); err != nil {
		return CollectSummary{}, fmt.Errorf("save episodes: %w", err)
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:      result.Run,
		Episodes: result.Episodes,
	})
	if err != nil {
		return CollectSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	c.logger.Info("rollout collected",
		zap.String("run_id", result.Run.ID),
		zap.Int("episodes", result.Run.Episodes),
		zap.Float64("mean_return", result.Run.MeanReturn),
	)
	return CollectSummary{
		Run:          result.Run,
		Summary:      stats.Summarize(result.Episodes),
		ArtifactsDir: runDir,
	}, nil
}

func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if req.Agent == "" {
		req.Agent = "random"
	}
	if req.Mode == "" {
		req.Mode = "gt"
	}
	agent, err := scape.NewAgentByName(req.Agent, req.Env.Zoom, req.Env.Seed)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if err := scape.CheckObservationMode(agent, req.Env.ObservationMode); err != nil {
		return EvaluateSummary{}, err
	}
	factory, err := SimulatorFactory(ctx, req.Backend, req.Env.RenderMode)
	if err != nil {
		return EvaluateSummary{}, err
	}
	s := scape.TMazeScape{Config: req.Env, NewSimulator: factory, Logger: c.logger}
	fitness, trace, err := s.EvaluateMode(ctx, agent, req.Mode)
	if err != nil {
		return EvaluateSummary{}, err
	}
	return EvaluateSummary{Agent: req.Agent, Mode: req.Mode, Fitness: float64(fitness), Trace: trace}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]stats.RunIndexEntry, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (c *Client) Episodes(ctx context.Context, req EpisodesRequest) ([]model.EpisodeRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	episodes, ok, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("episodes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(episodes) > req.Limit {
		episodes = episodes[:req.Limit]
	}
	return episodes, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Plot draws the arena, optionally overlaid with one stored episode's
// trajectory and active goals.
func (c *Client) Plot(ctx context.Context, req PlotRequest) error {
	if req.Out == "" {
		return errors.New("plot requires an output path")
	}
	zoom := req.Zoom
	opts := mazeplot.Options{ExitLines: req.ExitLines}

	if req.RunID != "" || req.Latest {
		runID, err := c.resolveRunID(req.RunID, req.Latest)
		if err != nil {
			return err
		}
		if err := c.Init(ctx); err != nil {
			return err
		}
		run, ok, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run not found: %s", runID)
		}
		episodes, _, err := c.store.GetEpisodes(ctx, runID)
		if err != nil {
			return err
		}
		if req.Episode < 0 || req.Episode >= len(episodes) {
			return fmt.Errorf("episode %d out of range for run %s with %d episodes", req.Episode, runID, len(episodes))
		}
		ep := episodes[req.Episode]
		zoom = run.Config.Zoom
		goals := maze.GoalPositions(zoom)
		for _, idx := range ep.ActiveGoals {
			opts.Goals = append(opts.Goals, goals[idx])
		}
		opts.Trajectory = ep.Trajectory
		opts.Title = fmt.Sprintf("%s episode %d return %.1f", runID, req.Episode, ep.Return)
	}
	if zoom <= 0 {
		zoom = tmazeenv.DefaultZoom
	}
	if opts.Title == "" {
		cam := maze.OverviewCamera(zoom)
		opts.Title = fmt.Sprintf("tmaze zoom=%g camera dist=%g pitch=%g", zoom, cam.Distance, cam.PitchDeg)
	}
	return mazeplot.SavePNG(req.Out, maze.Build(zoom), opts)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}
