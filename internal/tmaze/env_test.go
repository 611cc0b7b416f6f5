package tmaze

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/goal"
	"tmaze/internal/panorama"
	"tmaze/internal/physics"
)

type stubSimulator struct {
	worlds    int
	bodies    []physics.StaticBody
	spawned   []physics.Pose
	subSteps  int
	actions   [][2]float64
	renders   int
	contact   bool
	nextPose  *physics.Pose
	closed    bool
	actorPose physics.Pose
	spawnErr  error
}

func (s *stubSimulator) CreateWorld(_ context.Context, _ r3.Vec) error {
	s.worlds++
	s.bodies = nil
	return nil
}

func (s *stubSimulator) LoadStaticBody(_ context.Context, body physics.StaticBody) (physics.BodyID, error) {
	s.bodies = append(s.bodies, body)
	return physics.BodyID(len(s.bodies)), nil
}

func (s *stubSimulator) SpawnActor(_ context.Context, pose physics.Pose, _ physics.ActorParams) (physics.ActorID, error) {
	if s.spawnErr != nil {
		return 0, s.spawnErr
	}
	s.spawned = append(s.spawned, pose)
	s.actorPose = pose
	return physics.ActorID(1), nil
}

func (s *stubSimulator) StepSub(context.Context) error {
	s.subSteps++
	return nil
}

func (s *stubSimulator) QueryContacts(_ context.Context, _ physics.ActorID, body physics.BodyID) ([]physics.Contact, error) {
	if !s.contact {
		return nil, nil
	}
	return []physics.Contact{{Body: body}}, nil
}

func (s *stubSimulator) QueryPose(context.Context, physics.ActorID) (physics.Pose, error) {
	if s.nextPose != nil {
		s.actorPose = *s.nextPose
	}
	return s.actorPose, nil
}

func (s *stubSimulator) RenderView(_ context.Context, _, _ physics.Mat4, w, h int) (physics.Capture, error) {
	s.renders++
	return physics.Capture{Width: w, Height: h, RGBA: make([]uint8, w*h*4), Depth: make([]float32, w*h)}, nil
}

func (s *stubSimulator) ApplyAction(_ context.Context, _ physics.ActorID, action [2]float64) error {
	s.actions = append(s.actions, action)
	return nil
}

func (s *stubSimulator) Close() error {
	s.closed = true
	return nil
}

func (s *stubSimulator) placeAt(x, y float64) {
	s.nextPose = &physics.Pose{Position: r3.Vec{X: x, Y: y, Z: 0.5}, Orientation: physics.YawRotation(math.Pi / 2)}
}

func newTestEnv(t *testing.T, mutate func(*Config)) (*Env, *stubSimulator) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ObservationMode = ObserveProprio
	if mutate != nil {
		mutate(&cfg)
	}
	sim := &stubSimulator{}
	env, err := New(cfg, sim)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env, sim
}

func TestStepBeforeResetFails(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	if _, err := env.Step(context.Background(), [2]float64{1, 0}); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset, got %v", err)
	}
	if _, err := env.Render(context.Background()); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset from render, got %v", err)
	}
}

func TestFailedResetRequiresNewReset(t *testing.T) {
	env, sim := newTestEnv(t, nil)
	ctx := context.Background()
	if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	spawnErr := errors.New("spawn failed")
	sim.spawnErr = spawnErr
	if _, _, err := env.Reset(ctx, ResetOptions{}); !errors.Is(err, spawnErr) {
		t.Fatalf("expected spawn error, got %v", err)
	}
	if _, err := env.Step(ctx, [2]float64{1, 0}); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset after failed reset, got %v", err)
	}
	if _, err := env.Render(ctx); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset from render after failed reset, got %v", err)
	}

	sim.spawnErr = nil
	if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
		t.Fatalf("reset after failure: %v", err)
	}
	if _, err := env.Step(ctx, [2]float64{1, 0}); err != nil {
		t.Fatalf("step after recovered reset: %v", err)
	}
}

func TestResetWarmsUpWithoutActuation(t *testing.T) {
	env, sim := newTestEnv(t, nil)
	obs, info, err := env.Reset(context.Background(), ResetOptions{})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if sim.subSteps != WarmupSteps {
		t.Fatalf("expected %d warm-up sub-steps, got %d", WarmupSteps, sim.subSteps)
	}
	if len(sim.actions) != 0 {
		t.Fatalf("expected no actuation during warm-up, got %d actions", len(sim.actions))
	}
	if len(sim.bodies) != 8 {
		t.Fatalf("expected eight walls, got %d", len(sim.bodies))
	}
	if sim.bodies[0].Friction != 0 || sim.bodies[0].Mass != 99999999 {
		t.Fatalf("unexpected wall dynamics: %+v", sim.bodies[0])
	}
	start := sim.spawned[0]
	if start.Position != (r3.Vec{X: 0, Y: -5, Z: 0.5}) {
		t.Fatalf("expected nominal start at zoom 2, got %+v", start.Position)
	}
	if _, _, yaw := start.Euler(); math.Abs(yaw-math.Pi/2) > 1e-12 {
		t.Fatalf("expected default yaw pi/2, got %f", yaw)
	}
	if len(obs.Proprio) != ProprioSize || obs.Vision != nil {
		t.Fatalf("unexpected proprio observation: %+v", obs)
	}
	if info.Vision == nil || len(info.Proprio) != ProprioSize {
		t.Fatalf("expected info to carry proprio and vision: %+v", info)
	}
	state := env.State()
	if state.Episode != 1 || state.PreviousXY != (r2.Vec{X: 0, Y: -5}) {
		t.Fatalf("unexpected state after reset: %+v", state)
	}
}

func TestResetObservationShapePerMode(t *testing.T) {
	cases := []struct {
		mode    ObservationMode
		depth   bool
		proprio bool
		vision  [3]int
	}{
		{mode: ObserveProprio, proprio: true},
		{mode: ObserveVision, vision: [3]int{3, 16, 80}},
		{mode: ObserveVision, depth: true, vision: [3]int{4, 16, 80}},
		{mode: ObserveBoth, proprio: true, vision: [3]int{3, 16, 80}},
	}
	for _, tc := range cases {
		env, _ := newTestEnv(t, func(c *Config) {
			c.ObservationMode = tc.mode
			c.ReturnDepth = tc.depth
		})
		obs, info, err := env.Reset(context.Background(), ResetOptions{})
		if err != nil {
			t.Fatalf("mode=%s reset: %v", tc.mode, err)
		}
		if tc.proprio != (obs.Proprio != nil) {
			t.Fatalf("mode=%s: unexpected proprio presence %v", tc.mode, obs.Proprio)
		}
		if tc.proprio && len(obs.Proprio) != 6 {
			t.Fatalf("mode=%s: expected 6 proprio floats, got %d", tc.mode, len(obs.Proprio))
		}
		if tc.vision != ([3]int{}) {
			if obs.Vision == nil || obs.Vision.Shape() != tc.vision {
				t.Fatalf("mode=%s depth=%t: unexpected vision %+v", tc.mode, tc.depth, obs.Vision)
			}
			space := env.ObservationSpace()
			if space.Vision == nil || space.Vision.Shape[2] != panorama.Width || space.Vision.Shape[0] != tc.vision[0] {
				t.Fatalf("mode=%s: observation space disagrees: %+v", tc.mode, space.Vision)
			}
		} else if obs.Vision != nil {
			t.Fatalf("mode=%s: expected no vision", tc.mode)
		}
		if len(info.Proprio) != ProprioSize {
			t.Fatalf("mode=%s: info must always carry proprio", tc.mode)
		}
	}
}

func TestStepGoalThresholdAtZoomTwo(t *testing.T) {
	env, sim := newTestEnv(t, func(c *Config) {
		c.TargetSetting = string(goal.Random)
	})
	right := 1
	if _, _, err := env.Reset(context.Background(), ResetOptions{GoalIndex: &right}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	g := env.Goals()[0]

	sim.placeAt(g.Position.X+1.0*2, g.Position.Y)
	res, err := env.Step(context.Background(), [2]float64{})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Reward != 0 || res.Done {
		t.Fatalf("expected no reward one zoom away, got %+v", res)
	}

	sim.placeAt(g.Position.X+0.5*2, g.Position.Y)
	res, err = env.Step(context.Background(), [2]float64{})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Reward != 1000 || !res.Done || res.Info.GoalIndex != 1 {
		t.Fatalf("expected goal reached half a zoom away, got %+v", res)
	}
	if res.Truncated {
		t.Fatal("core never truncates")
	}

	if _, err := env.Step(context.Background(), [2]float64{}); !errors.Is(err, ErrEpisodeDone) {
		t.Fatalf("expected ErrEpisodeDone, got %v", err)
	}
}

func TestStepCollisionPunishment(t *testing.T) {
	env, sim := newTestEnv(t, func(c *Config) {
		c.RewardScales = []float64{1000, 500}
		c.CollisionPunishment = 2
	})
	ctx := context.Background()
	if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	goals := env.Goals()

	sim.contact = true
	sim.placeAt(0, -5)
	res, err := env.Step(ctx, [2]float64{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Reward != -2 || res.Done || !res.Info.Collision {
		t.Fatalf("expected punished non-terminal collision, got %+v", res)
	}

	sim.placeAt(goals[0].Position.X, goals[0].Position.Y)
	res, err = env.Step(ctx, [2]float64{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Reward != 1000 || !res.Done {
		t.Fatalf("expected unpunished max reward on collision, got %+v", res)
	}

	if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sim.placeAt(goals[1].Position.X, goals[1].Position.Y)
	res, err = env.Step(ctx, [2]float64{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Reward != 498 || !res.Done {
		t.Fatalf("expected punished sub-max reward, got %+v", res)
	}
}

func TestStepBuffersAfterCollision(t *testing.T) {
	env, sim := newTestEnv(t, func(c *Config) { c.ActionRepeats = 3 })
	ctx := context.Background()
	if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	sim.subSteps, sim.actions = 0, nil
	if _, err := env.Step(ctx, [2]float64{5, -3}); err != nil {
		t.Fatalf("step: %v", err)
	}
	if sim.subSteps != 3 || len(sim.actions) != 3 {
		t.Fatalf("expected 3 sub-steps without collision, got steps=%d actions=%d", sim.subSteps, len(sim.actions))
	}
	if sim.actions[0] != [2]float64{1, -1} {
		t.Fatalf("expected clipped action, got %v", sim.actions[0])
	}

	sim.subSteps, sim.actions = 0, nil
	sim.contact = true
	res, err := env.Step(ctx, [2]float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if sim.subSteps != 9 {
		t.Fatalf("expected 3 + 6 buffering sub-steps, got %d", sim.subSteps)
	}
	for i, a := range sim.actions[3:] {
		if a != [2]float64{} {
			t.Fatalf("buffering action %d should be zero, got %v", i, a)
		}
	}
	if res.Done {
		t.Fatal("collision must not terminate")
	}
}

func TestResetJitterAndExplicitStart(t *testing.T) {
	env, sim := newTestEnv(t, func(c *Config) { c.InitPositionRandomness = 0.5 })
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, _, err := env.Reset(ctx, ResetOptions{}); err != nil {
			t.Fatalf("reset: %v", err)
		}
		p := sim.spawned[len(sim.spawned)-1].Position
		if math.Abs(p.X) > 1 || math.Abs(p.Y+5) > 1 {
			t.Fatalf("jittered start out of range: %+v", p)
		}
	}

	xy := r2.Vec{X: 1.5, Y: -2}
	yaw := 0.25
	if _, _, err := env.Reset(ctx, ResetOptions{StartXY: &xy, StartYaw: &yaw}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	start := sim.spawned[len(sim.spawned)-1]
	if start.Position != (r3.Vec{X: 1.5, Y: -2, Z: 0.5}) {
		t.Fatalf("explicit start must be used as-is, got %+v", start.Position)
	}
	if _, _, got := start.Euler(); math.Abs(got-yaw) > 1e-12 {
		t.Fatalf("expected yaw %f, got %f", yaw, got)
	}
}

func TestResetIsDeterministicPerSeed(t *testing.T) {
	starts := func() []r3.Vec {
		env, sim := newTestEnv(t, func(c *Config) {
			c.InitPositionRandomness = 1
			c.Seed = 11
		})
		for i := 0; i < 5; i++ {
			if _, _, err := env.Reset(context.Background(), ResetOptions{}); err != nil {
				t.Fatalf("reset: %v", err)
			}
		}
		out := make([]r3.Vec, 0, len(sim.spawned))
		for _, p := range sim.spawned {
			out = append(out, p.Position)
		}
		return out
	}
	a, b := starts(), starts()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reset %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestNewRejectsUnsupportedTargetSetting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetSetting = "nearest"
	if _, err := New(cfg, &stubSimulator{}); !errors.Is(err, goal.ErrUnsupportedPolicy) {
		t.Fatalf("expected ErrUnsupportedPolicy, got %v", err)
	}
}

func TestCloseReleasesSimulator(t *testing.T) {
	env, sim := newTestEnv(t, nil)
	if err := env.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sim.closed {
		t.Fatal("expected simulator closed")
	}
}
