package goal

import (
	"errors"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestSelectEitherReturnsBothGoalsInOrder(t *testing.T) {
	sel, err := NewSelector(Either, 2, []float64{1000, 500})
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	set, err := sel.Select(rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected two goals, got %+v", set)
	}
	if set[0].Index != 0 || set[0].Position.X != -6.5 || set[0].RewardScale != 1000 {
		t.Fatalf("unexpected left goal: %+v", set[0])
	}
	if set[1].Index != 1 || set[1].Position.X != 6.5 || set[1].RewardScale != 500 {
		t.Fatalf("unexpected right goal: %+v", set[1])
	}
}

func TestSelectSwitchingAlternatesSides(t *testing.T) {
	sel, err := NewSelector(Switching, 2, []float64{1000, 1000})
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	prev, err := sel.Select(rng, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for episode := 0; episode < 10; episode++ {
		next, err := sel.Select(rng, nil)
		if err != nil {
			t.Fatalf("select episode %d: %v", episode, err)
		}
		if len(next) != 1 {
			t.Fatalf("switching must yield one goal, got %+v", next)
		}
		if next[0].Position.X*prev[0].Position.X >= 0 {
			t.Fatalf("episode %d: expected opposite x sign, prev=%+v next=%+v", episode, prev[0], next[0])
		}
		if next[0].Position.Y != prev[0].Position.Y {
			t.Fatalf("episode %d: y changed prev=%+v next=%+v", episode, prev[0], next[0])
		}
		if next[0].Index == prev[0].Index {
			t.Fatalf("episode %d: index did not flip", episode)
		}
		prev = next
	}
}

func TestSelectRandomIsDeterministicPerSeed(t *testing.T) {
	draw := func(seed uint64) []int {
		sel, err := NewSelector(Random, 2, []float64{1000, 1000})
		if err != nil {
			t.Fatalf("new selector: %v", err)
		}
		rng := rand.New(rand.NewSource(seed))
		out := make([]int, 0, 32)
		for i := 0; i < 32; i++ {
			set, err := sel.Select(rng, nil)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			out = append(out, set[0].Index)
		}
		return out
	}

	a, b := draw(42), draw(42)
	seen := map[int]bool{}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs across identical seeds: %v vs %v", i, a, b)
		}
		seen[a[i]] = true
	}
	if !seen[0] || !seen[1] {
		t.Fatalf("expected both indices across 32 draws, got %v", a)
	}
}

func TestSelectExplicitIndexOverridesPolicy(t *testing.T) {
	sel, err := NewSelector(Either, 2, []float64{1000, 250})
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	idx := 1
	set, err := sel.Select(rand.New(rand.NewSource(1)), &idx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(set) != 1 || set[0].Index != 1 || set[0].RewardScale != 250 {
		t.Fatalf("unexpected explicit goal: %+v", set)
	}

	bad := 2
	if _, err := sel.Select(rand.New(rand.NewSource(1)), &bad); !errors.Is(err, ErrGoalIndex) {
		t.Fatalf("expected ErrGoalIndex, got %v", err)
	}
}

func TestSelectSwitchingMirrorsExplicitGoal(t *testing.T) {
	sel, err := NewSelector(Switching, 1, []float64{10, 20})
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	idx := 0
	if _, err := sel.Select(rng, &idx); err != nil {
		t.Fatalf("select explicit: %v", err)
	}
	set, err := sel.Select(rng, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if set[0].Index != 1 || set[0].Position.X != 3.25 || set[0].RewardScale != 20 {
		t.Fatalf("expected mirrored right goal, got %+v", set[0])
	}
}

func TestNewSelectorRejectsUnknownPolicy(t *testing.T) {
	if _, err := NewSelector(Policy("nearest"), 2, []float64{1, 1}); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Fatalf("expected ErrUnsupportedPolicy, got %v", err)
	}
	if _, err := ParsePolicy("nearest"); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Fatalf("expected ErrUnsupportedPolicy from parse, got %v", err)
	}
	if p, err := ParsePolicy(" Switching "); err != nil || p != Switching {
		t.Fatalf("expected switching, got %q err=%v", p, err)
	}
}

func TestSetReachedUsesAxisAlignedThreshold(t *testing.T) {
	set := Set{
		{Index: 0, Position: r2.Vec{X: -6.5, Y: 5.5}, RewardScale: 1},
		{Index: 1, Position: r2.Vec{X: 6.5, Y: 5.5}, RewardScale: 2},
	}
	if g, ok := set.Reached(r2.Vec{X: 7.5, Y: 5.5}, 1.5); !ok || g.Index != 1 {
		t.Fatalf("expected right goal reached, got %+v ok=%t", g, ok)
	}
	if _, ok := set.Reached(r2.Vec{X: 8.5, Y: 5.5}, 1.5); ok {
		t.Fatal("expected no goal at 1.0*zoom offset")
	}
	if _, ok := set.Reached(r2.Vec{X: 0, Y: 0}, 1.5); ok {
		t.Fatal("expected no goal at origin")
	}
}
