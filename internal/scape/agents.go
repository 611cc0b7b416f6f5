package scape

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"

	"tmaze/internal/agentid"
	"tmaze/internal/maze"
	"tmaze/internal/tmaze"
)

// ErrProprioRequired reports an agent that reads its pose from observations
// that carry no proprioception.
var ErrProprioRequired = errors.New("agent requires proprioceptive observations")

// ProprioAgent is implemented by agents that read the vehicle pose from the
// head of their flattened input.
type ProprioAgent interface {
	Agent
	NeedsProprio() bool
}

// CheckObservationMode rejects agents whose inputs the observation mode
// cannot supply.
func CheckObservationMode(agent Agent, mode tmaze.ObservationMode) error {
	pa, ok := agent.(ProprioAgent)
	if !ok || !pa.NeedsProprio() {
		return nil
	}
	parsed, err := tmaze.ParseObservationMode(string(mode))
	if err != nil {
		return err
	}
	if parsed == tmaze.ObserveVision {
		return fmt.Errorf("agent %s with observation mode %q: %w", agent.ID(), parsed, ErrProprioRequired)
	}
	return nil
}

// RandomAgent draws both action components uniformly from [-1,1].
type RandomAgent struct {
	id   string
	dist distuv.Uniform
}

func NewRandomAgent(id string, seed uint64) *RandomAgent {
	return &RandomAgent{
		id:   id,
		dist: distuv.Uniform{Min: -1, Max: 1, Src: rand.NewSource(seed)},
	}
}

func (a *RandomAgent) ID() string { return a.id }

func (a *RandomAgent) RunStep(_ context.Context, _ []float64) ([]float64, error) {
	return []float64{a.dist.Rand(), a.dist.Rand()}, nil
}

// ConstantAgent repeats one action.
type ConstantAgent struct {
	Name   string
	Action [2]float64
}

func (a ConstantAgent) ID() string { return a.Name }

func (a ConstantAgent) RunStep(_ context.Context, _ []float64) ([]float64, error) {
	return []float64{a.Action[0], a.Action[1]}, nil
}

// WaypointAgent steers through the corridor and hall into one goal arm using
// the proprioceptive pose. It needs proprioception at the head of its input.
type WaypointAgent struct {
	id        string
	waypoints []r2.Vec
	reach     float64
	next      int
}

// NewWaypointAgent builds a route to the left (side 0) or right (side 1) alcove.
func NewWaypointAgent(id string, zoom float64, side int) (*WaypointAgent, error) {
	if side != 0 && side != 1 {
		return nil, fmt.Errorf("waypoint side must be 0 or 1, got %d", side)
	}
	g := maze.GoalPositions(zoom)[side]
	hallY := 1.0 * zoom
	return &WaypointAgent{
		id: id,
		waypoints: []r2.Vec{
			{X: 0, Y: hallY},
			{X: g.X, Y: hallY},
			g,
		},
		reach: 0.5 * zoom,
	}, nil
}

func (a *WaypointAgent) ID() string { return a.id }

func (a *WaypointAgent) NeedsProprio() bool { return true }

func (a *WaypointAgent) StartEpisode(int) {
	a.next = 0
}

func (a *WaypointAgent) RunStep(_ context.Context, input []float64) ([]float64, error) {
	if len(input) < tmaze.ProprioSize {
		return nil, fmt.Errorf("waypoint agent needs %d proprioceptive inputs, got %d", tmaze.ProprioSize, len(input))
	}
	pos := r2.Vec{X: input[0], Y: input[1]}
	yaw := input[5]

	for a.next < len(a.waypoints)-1 && r2.Norm(r2.Sub(a.waypoints[a.next], pos)) < a.reach {
		a.next++
	}
	target := a.waypoints[a.next]
	delta := r2.Sub(target, pos)
	heading := wrapAngle(math.Atan2(delta.Y, delta.X) - yaw)

	steer := math.Max(-1, math.Min(1, 2*heading))
	throttle := 1.0
	if math.Abs(heading) > 0.5 {
		throttle = 0.3
	}
	return []float64{throttle, steer}, nil
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// AgentNames lists the built-in agents accepted by NewAgentByName.
var AgentNames = []string{"random", "idle", "forward", "waypoint-left", "waypoint-right"}

// NewAgentByName builds a built-in agent; aliases such as "noop" or
// "wp_left" are accepted. seed only affects "random".
func NewAgentByName(name string, zoom float64, seed uint64) (StepAgent, error) {
	name = agentid.Normalize(name)
	switch name {
	case "random":
		return NewRandomAgent(name, seed), nil
	case "idle":
		return ConstantAgent{Name: name}, nil
	case "forward":
		return ConstantAgent{Name: name, Action: [2]float64{1, 0}}, nil
	case "waypoint-left":
		return NewWaypointAgent(name, zoom, 0)
	case "waypoint-right":
		return NewWaypointAgent(name, zoom, 1)
	default:
		return nil, fmt.Errorf("unknown agent: %s", name)
	}
}
