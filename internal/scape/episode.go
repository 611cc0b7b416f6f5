package scape

import (
	"context"
	"fmt"

	"tmaze/internal/tmaze"
)

// EpisodeOutcome summarizes one agent-driven T-maze episode.
type EpisodeOutcome struct {
	Return         float64
	Steps          int
	CollisionSteps int
	// GoalIndex is the reached goal, -1 on timeout.
	GoalIndex   int
	ActiveGoals []int
	Trajectory  [][2]float64
	Final       tmaze.Observation
}

// RunEpisode resets env with opts and feeds the agent flattened
// observations until the episode terminates or maxSteps steps elapse.
// Agents that need proprioception are rejected in vision mode.
func RunEpisode(ctx context.Context, env *tmaze.Env, runner StepAgent, opts tmaze.ResetOptions, maxSteps int) (EpisodeOutcome, error) {
	if err := CheckObservationMode(runner, env.Config().ObservationMode); err != nil {
		return EpisodeOutcome{}, err
	}
	obs, _, err := env.Reset(ctx, opts)
	if err != nil {
		return EpisodeOutcome{}, err
	}

	out := EpisodeOutcome{GoalIndex: -1, Final: obs}
	for _, g := range env.Goals() {
		out.ActiveGoals = append(out.ActiveGoals, g.Index)
	}
	start := env.State().PreviousXY
	out.Trajectory = append(out.Trajectory, [2]float64{start.X, start.Y})

	for out.Steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return EpisodeOutcome{}, err
		}
		action, err := runner.RunStep(ctx, FlattenObservation(obs))
		if err != nil {
			return EpisodeOutcome{}, err
		}
		if len(action) != 2 {
			return EpisodeOutcome{}, fmt.Errorf("tmaze requires two outputs, got %d", len(action))
		}
		res, err := env.Step(ctx, [2]float64{action[0], action[1]})
		if err != nil {
			return EpisodeOutcome{}, err
		}
		out.Steps++
		out.Return += res.Reward
		if res.Info.Collision {
			out.CollisionSteps++
		}
		xy := env.State().PreviousXY
		out.Trajectory = append(out.Trajectory, [2]float64{xy.X, xy.Y})
		obs = res.Observation
		out.Final = obs
		if res.Done {
			out.GoalIndex = res.Info.GoalIndex
			break
		}
	}
	return out, nil
}
