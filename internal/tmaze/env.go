// Package tmaze runs T-maze navigation episodes on top of a physics
// simulator: it builds the arena, selects goals, applies actions with
// collision buffering and scores goal arrivals.
package tmaze

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"tmaze/internal/goal"
	"tmaze/internal/maze"
	"tmaze/internal/panorama"
	"tmaze/internal/physics"
)

var (
	ErrNotReset    = errors.New("environment has not been reset")
	ErrEpisodeDone = errors.New("episode is done; call Reset")
)

// Gravity is the world gravity applied at every reset.
var Gravity = r3.Vec{Z: -9.8}

// EpisodeState is the mutable per-episode state.
type EpisodeState struct {
	Done         bool
	Collision    bool
	Episode      int
	Steps        int
	PreviousXY   r2.Vec
	InitPosition r3.Vec
}

// Observation holds the parts produced by the configured mode.
type Observation struct {
	Proprio []float32
	Vision  *panorama.Image
}

// Info carries auxiliary data alongside every observation.
type Info struct {
	Proprio   []float32
	Vision    *panorama.Image
	Collision bool
	// GoalIndex is the reached goal, -1 when none.
	GoalIndex int
	Episode   int
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Truncated   bool
	Info        Info
}

// ResetOptions override the policy-driven start pose and goal for one reset.
type ResetOptions struct {
	// StartXY is used as-is, without zoom scaling or jitter.
	StartXY   *r2.Vec
	StartYaw  *float64
	GoalIndex *int
}

type Option func(*Env)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Env) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Env is a single T-maze environment. It is not safe for concurrent use.
type Env struct {
	cfg      Config
	mode     ObservationMode
	sim      physics.Simulator
	selector *goal.Selector
	rng      *rand.Rand
	jitter   distuv.Uniform
	logger   *zap.Logger

	maxReward float64
	layout    maze.Layout
	walls     []physics.BodyID
	actor     physics.ActorID
	goals     goal.Set
	pose      physics.Pose
	state     EpisodeState
	started   bool
}

func New(cfg Config, sim physics.Simulator, opts ...Option) (*Env, error) {
	if sim == nil {
		return nil, errors.New("simulator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, _ := ParseObservationMode(string(cfg.ObservationMode))
	policy, _ := goal.ParsePolicy(cfg.TargetSetting)
	selector, err := goal.NewSelector(policy, cfg.Zoom, cfg.RewardScales)
	if err != nil {
		return nil, err
	}

	src := rand.NewSource(cfg.Seed)
	e := &Env{
		cfg:       cfg,
		mode:      mode,
		sim:       sim,
		selector:  selector,
		rng:       rand.New(src),
		jitter:    distuv.Uniform{Min: -1, Max: 1, Src: src},
		logger:    zap.NewNop(),
		maxReward: math.Max(cfg.RewardScales[0], cfg.RewardScales[1]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Env) Config() Config {
	return e.cfg
}

func (e *Env) State() EpisodeState {
	return e.state
}

// Goals returns the active goals of the current episode.
func (e *Env) Goals() goal.Set {
	return append(goal.Set(nil), e.goals...)
}

func (e *Env) Layout() maze.Layout {
	return e.layout
}

func (e *Env) Reset(ctx context.Context, opts ResetOptions) (Observation, Info, error) {
	e.started = false
	e.state.Done = false
	e.state.Collision = false
	e.state.Steps = 0

	if err := e.sim.CreateWorld(ctx, Gravity); err != nil {
		return Observation{}, Info{}, fmt.Errorf("create world: %w", err)
	}

	goals, err := e.selector.Select(e.rng, opts.GoalIndex)
	if err != nil {
		return Observation{}, Info{}, err
	}
	e.goals = goals

	e.layout = maze.Build(e.cfg.Zoom)
	e.walls = e.walls[:0]
	for _, w := range e.layout.Walls {
		id, err := e.sim.LoadStaticBody(ctx, physics.StaticBody{
			Name:                 w.Name,
			HalfExtents:          w.HalfExtents,
			CollisionHalfExtents: w.CollisionHalfExtents,
			Center:               w.Center,
			Orientation:          w.Orientation,
			Color:                w.Color,
			Mass:                 maze.WallMass,
			Friction:             maze.WallFriction,
		})
		if err != nil {
			return Observation{}, Info{}, fmt.Errorf("load wall %s: %w", w.Name, err)
		}
		e.walls = append(e.walls, id)
	}

	yaw := math.Pi / 2
	if opts.StartYaw != nil {
		yaw = *opts.StartYaw
	}
	e.state.InitPosition = e.startPosition(opts.StartXY)

	actor, err := e.sim.SpawnActor(ctx, physics.Pose{
		Position:    e.state.InitPosition,
		Orientation: physics.YawRotation(yaw),
	}, physics.ActorParams{MaxSpeed: VehicleMaxSpeed, GroundFriction: maze.GroundFriction})
	if err != nil {
		return Observation{}, Info{}, fmt.Errorf("spawn vehicle: %w", err)
	}
	e.actor = actor

	for i := 0; i < WarmupSteps; i++ {
		if err := e.sim.StepSub(ctx); err != nil {
			return Observation{}, Info{}, fmt.Errorf("warm-up step %d: %w", i, err)
		}
	}

	pose, err := e.sim.QueryPose(ctx, e.actor)
	if err != nil {
		return Observation{}, Info{}, fmt.Errorf("query pose: %w", err)
	}
	e.pose = pose
	e.state.PreviousXY = r2.Vec{X: pose.Position.X, Y: pose.Position.Y}
	e.state.Episode++
	e.started = true

	obs, info, err := e.observe(ctx)
	if err != nil {
		return Observation{}, Info{}, err
	}
	info.GoalIndex = -1

	e.logger.Debug("episode reset",
		zap.Int("episode", e.state.Episode),
		zap.Int("goals", len(e.goals)),
		zap.Float64("start_x", e.state.InitPosition.X),
		zap.Float64("start_y", e.state.InitPosition.Y),
	)
	return obs, info, nil
}

// startPosition applies jitter around the nominal start unless an explicit
// position is given. Both jitter draws happen on every policy-driven reset.
func (e *Env) startPosition(explicit *r2.Vec) r3.Vec {
	if explicit != nil {
		return r3.Vec{X: explicit.X, Y: explicit.Y, Z: maze.StartHeight}
	}
	dx := e.jitter.Rand()
	dy := e.jitter.Rand()
	nominal := maze.NominalStart()
	return r3.Vec{
		X: (nominal.X + dx*e.cfg.InitPositionRandomness) * e.cfg.Zoom,
		Y: (nominal.Y + dy*e.cfg.InitPositionRandomness) * e.cfg.Zoom,
		Z: maze.StartHeight,
	}
}

func (e *Env) Step(ctx context.Context, action [2]float64) (StepResult, error) {
	if !e.started {
		return StepResult{}, ErrNotReset
	}
	if e.state.Done {
		return StepResult{}, ErrEpisodeDone
	}
	for i := range action {
		action[i] = clip(action[i])
	}

	collision := false
	for i := 0; i < e.cfg.ActionRepeats; i++ {
		if err := e.sim.ApplyAction(ctx, e.actor, action); err != nil {
			return StepResult{}, fmt.Errorf("apply action: %w", err)
		}
		if err := e.sim.StepSub(ctx); err != nil {
			return StepResult{}, fmt.Errorf("step: %w", err)
		}
		for _, wall := range e.walls {
			contacts, err := e.sim.QueryContacts(ctx, e.actor, wall)
			if err != nil {
				return StepResult{}, fmt.Errorf("query contacts: %w", err)
			}
			if len(contacts) > 0 {
				collision = true
			}
		}
	}

	if collision {
		for i := 0; i < 2*e.cfg.ActionRepeats; i++ {
			if err := e.sim.ApplyAction(ctx, e.actor, [2]float64{}); err != nil {
				return StepResult{}, fmt.Errorf("apply buffering action: %w", err)
			}
			if err := e.sim.StepSub(ctx); err != nil {
				return StepResult{}, fmt.Errorf("buffering step: %w", err)
			}
		}
	}

	pose, err := e.sim.QueryPose(ctx, e.actor)
	if err != nil {
		return StepResult{}, fmt.Errorf("query pose: %w", err)
	}
	e.pose = pose
	xy := r2.Vec{X: pose.Position.X, Y: pose.Position.Y}

	reward := 0.0
	reached := -1
	if g, ok := e.goals.Reached(xy, maze.GoalThreshold*e.cfg.Zoom); ok {
		reward += g.RewardScale
		reached = g.Index
		e.state.Done = true
	}
	if collision && reward < e.maxReward {
		reward -= e.cfg.CollisionPunishment
	}

	e.state.Collision = collision
	e.state.PreviousXY = xy
	e.state.Steps++

	obs, info, err := e.observe(ctx)
	if err != nil {
		return StepResult{}, err
	}
	info.Collision = collision
	info.GoalIndex = reached

	if e.state.Done {
		e.logger.Debug("episode terminated",
			zap.Int("episode", e.state.Episode),
			zap.Int("steps", e.state.Steps),
			zap.Int("goal", reached),
			zap.Float64("reward", reward),
		)
	}
	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        e.state.Done,
		Truncated:   false,
		Info:        info,
	}, nil
}

// Render synthesizes the panorama at the current vehicle pose.
func (e *Env) Render(ctx context.Context) (*panorama.Image, error) {
	if !e.started {
		return nil, ErrNotReset
	}
	img, err := panorama.Synthesize(ctx, e.sim, e.pose, e.cfg.Zoom, e.cfg.ReturnDepth)
	if err != nil {
		return nil, fmt.Errorf("render panorama: %w", err)
	}
	return img, nil
}

func (e *Env) Close() error {
	return e.sim.Close()
}

func (e *Env) observe(ctx context.Context) (Observation, Info, error) {
	proprio := proprioception(e.pose)
	vision, err := e.Render(ctx)
	if err != nil {
		return Observation{}, Info{}, err
	}

	info := Info{Proprio: proprio, Episode: e.state.Episode}
	var obs Observation
	switch e.mode {
	case ObserveVision:
		obs.Vision = vision
	case ObserveBoth:
		obs.Proprio = proprio
		obs.Vision = vision
		info.Vision = vision
	default:
		obs.Proprio = proprio
		info.Vision = vision
	}
	return obs, info, nil
}

func proprioception(p physics.Pose) []float32 {
	roll, pitch, yaw := p.Euler()
	return []float32{
		float32(p.Position.X),
		float32(p.Position.Y),
		float32(p.Position.Z),
		float32(roll),
		float32(pitch),
		float32(yaw),
	}
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
