// Package maze describes the static T-maze arena: wall boxes, goal alcoves and
// the nominal start pose, all derived from one canonical layout scaled by a
// zoom coefficient.
package maze

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// WallMass is large enough that walls never move under vehicle contact.
	WallMass = 99999999.0
	// WallFriction overrides the lateral friction of every wall body.
	WallFriction = 0.0
	// GroundFriction is the lateral friction of the ground plane.
	GroundFriction = 10.0

	// GoalThreshold is the per-axis proximity (in canonical units) counted as reaching a goal.
	GoalThreshold = 0.75
	// StartHeight is the z coordinate the vehicle is spawned at.
	StartHeight = 0.5
)

// Wall is one immovable box of the arena.
type Wall struct {
	Name string
	// HalfExtents is the visual half size used by the renderer.
	HalfExtents r3.Vec
	// CollisionHalfExtents is slightly smaller than the visual box on most walls.
	CollisionHalfExtents r3.Vec
	Center               r3.Vec
	Orientation          r3.Rotation
	Color                [4]float64
}

// Box returns the axis-aligned visual bounds of the wall.
func (w Wall) Box() r3.Box {
	return r3.Box{
		Min: r3.Sub(w.Center, w.HalfExtents),
		Max: r3.Add(w.Center, w.HalfExtents),
	}
}

// Layout is the full set of walls for one zoom coefficient.
type Layout struct {
	Zoom  float64
	Walls []Wall
}

type canonicalWall struct {
	name      string
	visual    r2.Vec
	collision r2.Vec
	center    r2.Vec
	color     [4]float64
}

var canonicalWalls = []canonicalWall{
	{name: "top-left", visual: r2.Vec{X: 0.5, Y: 2}, collision: r2.Vec{X: 0.495, Y: 1.995}, center: r2.Vec{X: -4.5, Y: 1}, color: [4]float64{0.8, 0.38, 0.1, 1}},
	{name: "top-right", visual: r2.Vec{X: 0.5, Y: 2}, collision: r2.Vec{X: 0.495, Y: 1.995}, center: r2.Vec{X: 4.5, Y: 1}, color: [4]float64{0.1, 0.38, 0.8, 1}},
	{name: "top", visual: r2.Vec{X: 2.5, Y: 0.5}, collision: r2.Vec{X: 2.495, Y: 0.495}, center: r2.Vec{X: 0, Y: 2.5}, color: [4]float64{0.52, 0.52, 0.52, 1}},
	{name: "bottom", visual: r2.Vec{X: 1.5, Y: 0.5}, collision: r2.Vec{X: 1.495, Y: 0.495}, center: r2.Vec{X: 0, Y: -4.5}, color: [4]float64{0.72, 0.24, 0.72, 1}},
	{name: "middle-left", visual: r2.Vec{X: 1.25, Y: 0.5}, collision: r2.Vec{X: 1.124, Y: 0.495}, center: r2.Vec{X: -2.75, Y: -0.5}, color: [4]float64{0.8, 0.5, 0.5, 1}},
	{name: "middle-right", visual: r2.Vec{X: 1.25, Y: 0.5}, collision: r2.Vec{X: 1.124, Y: 0.495}, center: r2.Vec{X: 2.75, Y: -0.5}, color: [4]float64{0.5, 0.5, 0.8, 1}},
	{name: "bottom-left", visual: r2.Vec{X: 0.495, Y: 1.995}, collision: r2.Vec{X: 0.495, Y: 1.995}, center: r2.Vec{X: -1, Y: -2}, color: [4]float64{0.52, 0.52, 0.52, 1}},
	{name: "bottom-right", visual: r2.Vec{X: 0.495, Y: 1.995}, collision: r2.Vec{X: 0.495, Y: 1.995}, center: r2.Vec{X: 1, Y: -2}, color: [4]float64{0.52, 0.52, 0.52, 1}},
}

// Build scales the canonical layout by zoom. Wall height (half extent and
// center z) equals zoom.
func Build(zoom float64) Layout {
	walls := make([]Wall, 0, len(canonicalWalls))
	for _, c := range canonicalWalls {
		walls = append(walls, Wall{
			Name:                 c.name,
			HalfExtents:          r3.Vec{X: c.visual.X * zoom, Y: c.visual.Y * zoom, Z: zoom},
			CollisionHalfExtents: r3.Vec{X: c.collision.X * zoom, Y: c.collision.Y * zoom, Z: zoom},
			Center:               r3.Vec{X: c.center.X * zoom, Y: c.center.Y * zoom, Z: zoom},
			Orientation:          r3.Rotation{Real: 1},
			Color:                c.color,
		})
	}
	return Layout{Zoom: zoom, Walls: walls}
}

// WallByName returns the named wall of the layout.
func (l Layout) WallByName(name string) (Wall, bool) {
	for _, w := range l.Walls {
		if w.Name == name {
			return w, true
		}
	}
	return Wall{}, false
}

// Bounds is the xy extent covered by the walls.
func (l Layout) Bounds() (lo, hi r2.Vec) {
	if len(l.Walls) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	first := l.Walls[0].Box()
	lo = r2.Vec{X: first.Min.X, Y: first.Min.Y}
	hi = r2.Vec{X: first.Max.X, Y: first.Max.Y}
	for _, w := range l.Walls[1:] {
		b := w.Box()
		lo.X = min(lo.X, b.Min.X)
		lo.Y = min(lo.Y, b.Min.Y)
		hi.X = max(hi.X, b.Max.X)
		hi.Y = max(hi.Y, b.Max.Y)
	}
	return lo, hi
}

// GoalPositions returns the left and right alcove coordinates scaled by zoom.
func GoalPositions(zoom float64) [2]r2.Vec {
	return [2]r2.Vec{
		{X: -3.25 * zoom, Y: 2.75 * zoom},
		{X: 3.25 * zoom, Y: 2.75 * zoom},
	}
}

// NominalStart is the unjittered start position in canonical units.
func NominalStart() r2.Vec {
	return r2.Vec{X: 0, Y: -2.5}
}

// ExitLine is a thin strip across an arm marking the entrance of a goal alcove.
type ExitLine struct {
	Min r2.Vec
	Max r2.Vec
}

// ExitLines returns the left and right alcove entrance strips scaled by zoom.
func ExitLines(zoom float64) [2]ExitLine {
	return [2]ExitLine{
		{Min: r2.Vec{X: -4 * zoom, Y: 2 * zoom}, Max: r2.Vec{X: -2.5 * zoom, Y: 2.05 * zoom}},
		{Min: r2.Vec{X: 2.5 * zoom, Y: 2 * zoom}, Max: r2.Vec{X: 4 * zoom, Y: 2.05 * zoom}},
	}
}

// Camera is an orbit camera looking at the arena from above and behind.
type Camera struct {
	Distance float64
	YawDeg   float64
	PitchDeg float64
	Target   r3.Vec
}

// OverviewCamera is the default overview used by interactive viewers.
func OverviewCamera(zoom float64) Camera {
	return Camera{
		Distance: 8 * zoom,
		YawDeg:   0,
		PitchDeg: -60,
		Target:   r3.Vec{X: 0, Y: -2.5 * zoom, Z: 2.5 * zoom},
	}
}
