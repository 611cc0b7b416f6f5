package tmaze

import (
	"math"

	"tmaze/internal/panorama"
)

// ProprioSize is the length of the proprioceptive vector: x, y, z, roll, pitch, yaw.
const ProprioSize = 6

// Box is a bounded tensor space.
type Box struct {
	Shape []int   `json:"shape"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

func (b Box) Contains(values []float32) bool {
	size := 1
	for _, d := range b.Shape {
		size *= d
	}
	if len(values) != size {
		return false
	}
	for _, v := range values {
		if float64(v) < b.Low || float64(v) > b.High {
			return false
		}
	}
	return true
}

// Space describes the observation returned in the configured mode. Fields
// not produced by the mode are nil.
type Space struct {
	Proprio *Box `json:"proprio,omitempty"`
	Vision  *Box `json:"vision,omitempty"`
}

func (e *Env) ObservationSpace() Space {
	var space Space
	if e.mode != ObserveVision {
		space.Proprio = &Box{Shape: []int{ProprioSize}, Low: -math.MaxFloat32, High: math.MaxFloat32}
	}
	if e.mode != ObserveProprio {
		space.Vision = &Box{Shape: []int{e.channels(), panorama.Size, panorama.Width}, Low: 0, High: 1}
	}
	return space
}

func (e *Env) ActionSpace() Box {
	return Box{Shape: []int{2}, Low: -1, High: 1}
}

func (e *Env) channels() int {
	if e.cfg.ReturnDepth {
		return 4
	}
	return 3
}
