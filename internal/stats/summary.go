package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tmaze/internal/model"
)

// EpisodeSummary aggregates the episodes of one run.
type EpisodeSummary struct {
	Episodes       int     `json:"episodes"`
	MeanReturn     float64 `json:"mean_return"`
	StdReturn      float64 `json:"std_return"`
	MinReturn      float64 `json:"min_return"`
	MaxReturn      float64 `json:"max_return"`
	MeanSteps      float64 `json:"mean_steps"`
	SuccessRate    float64 `json:"success_rate"`
	LeftGoalRuns   int     `json:"left_goal_runs"`
	RightGoalRuns  int     `json:"right_goal_runs"`
	TimeoutRuns    int     `json:"timeout_runs"`
	CollisionSteps int     `json:"collision_steps"`
}

func Summarize(episodes []model.EpisodeRecord) EpisodeSummary {
	summary := EpisodeSummary{Episodes: len(episodes)}
	if len(episodes) == 0 {
		return summary
	}

	returns := make([]float64, 0, len(episodes))
	steps := make([]float64, 0, len(episodes))
	for _, ep := range episodes {
		returns = append(returns, ep.Return)
		steps = append(steps, float64(ep.Steps))
		summary.CollisionSteps += ep.CollisionSteps
		switch ep.GoalIndex {
		case 0:
			summary.LeftGoalRuns++
		case 1:
			summary.RightGoalRuns++
		default:
			summary.TimeoutRuns++
		}
	}

	summary.MeanReturn, summary.StdReturn = stat.MeanStdDev(returns, nil)
	if math.IsNaN(summary.StdReturn) {
		summary.StdReturn = 0
	}
	summary.MinReturn = floats.Min(returns)
	summary.MaxReturn = floats.Max(returns)
	summary.MeanSteps = stat.Mean(steps, nil)
	summary.SuccessRate = float64(summary.LeftGoalRuns+summary.RightGoalRuns) / float64(len(episodes))
	return summary
}
