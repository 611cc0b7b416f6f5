// Package goal picks the active goal alcove(s) for each episode.
package goal

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"

	"tmaze/internal/maze"
)

var (
	ErrUnsupportedPolicy = errors.New("unsupported target setting")
	ErrGoalIndex         = errors.New("goal index out of range")
)

// Policy is the target-selection policy applied at every reset.
type Policy string

const (
	// Either keeps both alcoves active; the first one reached ends the episode.
	Either Policy = "either"
	// Switching alternates a single goal between the alcoves every episode.
	Switching Policy = "switching"
	// Random draws a single goal uniformly every episode.
	Random Policy = "random"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.TrimSpace(strings.ToLower(s))); p {
	case Either, Switching, Random:
		return p, nil
	case "":
		return Either, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPolicy, s)
	}
}

// Goal is one active alcove and the reward for reaching it.
type Goal struct {
	Index       int
	Position    r2.Vec
	RewardScale float64
}

// Set is the ordered list of active goals; order breaks ties when two goals
// are reached on the same step.
type Set []Goal

// Reached returns the first goal whose axis-aligned neighbourhood of the
// given half width contains xy.
func (s Set) Reached(xy r2.Vec, halfWidth float64) (Goal, bool) {
	for _, g := range s {
		if abs(xy.X-g.Position.X) < halfWidth && abs(xy.Y-g.Position.Y) < halfWidth {
			return g, true
		}
	}
	return Goal{}, false
}

// Selector keeps the previous goal so the switching policy can mirror it.
type Selector struct {
	policy   Policy
	zoom     float64
	scales   [2]float64
	previous *Goal
}

func NewSelector(policy Policy, zoom float64, rewardScales []float64) (*Selector, error) {
	switch policy {
	case Either, Switching, Random:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPolicy, policy)
	}
	if len(rewardScales) != 2 {
		return nil, fmt.Errorf("expected two reward scales, got %d", len(rewardScales))
	}
	return &Selector{
		policy: policy,
		zoom:   zoom,
		scales: [2]float64{rewardScales[0], rewardScales[1]},
	}, nil
}

func (s *Selector) Policy() Policy {
	return s.policy
}

// Select returns the goals for the next episode. A non-nil explicit index
// overrides the policy for this call only.
func (s *Selector) Select(rng *rand.Rand, explicit *int) (Set, error) {
	if explicit != nil {
		g, err := s.goal(*explicit)
		if err != nil {
			return nil, err
		}
		return s.remember(g), nil
	}

	switch s.policy {
	case Either:
		left, _ := s.goal(0)
		right, _ := s.goal(1)
		s.previous = nil
		return Set{left, right}, nil
	case Switching:
		if s.previous == nil {
			g, _ := s.goal(rng.Intn(2))
			return s.remember(g), nil
		}
		mirrored := Goal{
			Index:       1 - s.previous.Index,
			Position:    r2.Vec{X: -s.previous.Position.X, Y: s.previous.Position.Y},
			RewardScale: s.scales[1-s.previous.Index],
		}
		return s.remember(mirrored), nil
	case Random:
		g, _ := s.goal(rng.Intn(2))
		return s.remember(g), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPolicy, s.policy)
	}
}

func (s *Selector) goal(index int) (Goal, error) {
	if index < 0 || index > 1 {
		return Goal{}, fmt.Errorf("%w: %d", ErrGoalIndex, index)
	}
	return Goal{
		Index:       index,
		Position:    maze.GoalPositions(s.zoom)[index],
		RewardScale: s.scales[index],
	}, nil
}

func (s *Selector) remember(g Goal) Set {
	prev := g
	s.previous = &prev
	return Set{g}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
