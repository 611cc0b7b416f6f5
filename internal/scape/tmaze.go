package scape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tmaze/internal/physics"
	"tmaze/internal/tmaze"
)

var _ ModeAwareScape = TMazeScape{}

// SimulatorFactory builds the simulator backing one evaluation.
type SimulatorFactory func() (physics.Simulator, error)

// TMazeScape evaluates a StepAgent over a batch of T-maze episodes. Fitness
// is the mean episode return.
type TMazeScape struct {
	Config       tmaze.Config
	NewSimulator SimulatorFactory
	Logger       *zap.Logger
}

func (TMazeScape) Name() string {
	return "tmaze"
}

func (s TMazeScape) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	return s.EvaluateMode(ctx, agent, "gt")
}

type tmazeModeConfig struct {
	mode      string
	episodes  int
	maxSteps  int
	alternate bool
}

func tmazeConfigForMode(mode string) (tmazeModeConfig, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "gt":
		return tmazeModeConfig{mode: "gt", episodes: 8, maxSteps: 150}, nil
	case "validation":
		return tmazeModeConfig{mode: "validation", episodes: 4, maxSteps: 150, alternate: true}, nil
	case "test":
		return tmazeModeConfig{mode: "test", episodes: 8, maxSteps: 200, alternate: true}, nil
	case "benchmark":
		return tmazeModeConfig{mode: "benchmark", episodes: 16, maxSteps: 200, alternate: true}, nil
	default:
		return tmazeModeConfig{}, fmt.Errorf("unsupported tmaze mode: %s", mode)
	}
}

func (s TMazeScape) EvaluateMode(ctx context.Context, agent Agent, mode string) (Fitness, Trace, error) {
	cfg, err := tmazeConfigForMode(mode)
	if err != nil {
		return 0, nil, err
	}
	runner, ok := agent.(StepAgent)
	if !ok {
		return 0, nil, fmt.Errorf("agent %s does not implement step runner", agent.ID())
	}
	if s.NewSimulator == nil {
		return 0, nil, errors.New("tmaze scape requires a simulator factory")
	}
	if err := CheckObservationMode(runner, s.Config.ObservationMode); err != nil {
		return 0, nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sim, err := s.NewSimulator()
	if err != nil {
		return 0, nil, fmt.Errorf("create simulator: %w", err)
	}
	env, err := tmaze.New(s.Config, sim, tmaze.WithLogger(logger))
	if err != nil {
		_ = sim.Close()
		return 0, nil, err
	}
	defer env.Close()

	var (
		returnTotal  float64
		successRuns  int
		leftRuns     int
		rightRuns    int
		timeoutRuns  int
		collisions   int
		stepsTotal   int
		bestReturn   float64
		worstReturn  float64
		episodeSteps []int
	)
	for episode := 0; episode < cfg.episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		if ea, ok := agent.(EpisodeAgent); ok {
			ea.StartEpisode(episode)
		}

		opts := tmaze.ResetOptions{}
		if cfg.alternate {
			idx := episode % 2
			opts.GoalIndex = &idx
		}
		outcome, err := RunEpisode(ctx, env, runner, opts, cfg.maxSteps)
		if err != nil {
			return 0, nil, err
		}
		epReturn, steps, reached := outcome.Return, outcome.Steps, outcome.GoalIndex
		collisions += outcome.CollisionSteps

		switch reached {
		case 0:
			successRuns++
			leftRuns++
		case 1:
			successRuns++
			rightRuns++
		default:
			timeoutRuns++
		}
		if episode == 0 || epReturn > bestReturn {
			bestReturn = epReturn
		}
		if episode == 0 || epReturn < worstReturn {
			worstReturn = epReturn
		}
		returnTotal += epReturn
		stepsTotal += steps
		episodeSteps = append(episodeSteps, steps)
		logger.Debug("tmaze episode evaluated",
			zap.String("agent", agent.ID()),
			zap.Int("episode", episode),
			zap.Float64("return", epReturn),
			zap.Int("steps", steps),
			zap.Int("goal", reached),
		)
	}

	meanReturn := returnTotal / float64(cfg.episodes)
	return Fitness(meanReturn), Trace{
		"mode":            cfg.mode,
		"episodes":        cfg.episodes,
		"max_steps":       cfg.maxSteps,
		"alternate_goals": cfg.alternate,
		"mean_return":     meanReturn,
		"best_return":     bestReturn,
		"worst_return":    worstReturn,
		"success_runs":    successRuns,
		"left_goal_runs":  leftRuns,
		"right_goal_runs": rightRuns,
		"timeout_runs":    timeoutRuns,
		"collision_steps": collisions,
		"steps_executed":  stepsTotal,
		"episode_steps":   episodeSteps,
		"target_setting":  s.Config.TargetSetting,
	}, nil
}

// FlattenObservation concatenates the proprioceptive vector and the
// channels-first vision tensor into one agent input.
func FlattenObservation(obs tmaze.Observation) []float64 {
	size := len(obs.Proprio)
	if obs.Vision != nil {
		size += len(obs.Vision.Data)
	}
	out := make([]float64, 0, size)
	for _, v := range obs.Proprio {
		out = append(out, float64(v))
	}
	if obs.Vision != nil {
		for _, v := range obs.Vision.Data {
			out = append(out, float64(v))
		}
	}
	return out
}
