package planar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
)

var (
	// SkyColor fills pixels that hit nothing.
	SkyColor = [3]uint8{178, 204, 230}
	groundA  = [3]float64{0.55, 0.55, 0.55}
	groundB  = [3]float64{0.75, 0.75, 0.75}
	lightDir = r3.Unit(r3.Vec{X: 0.4, Y: 0.3, Z: 1})
)

// Raycast renders axis-aligned boxes and the z=0 ground plane through a
// pinhole camera. Depth follows the OpenGL [0,1] depth-buffer convention.
func Raycast(boxes []physics.StaticBody, view, proj physics.Mat4, width, height int) (physics.Capture, error) {
	if width <= 0 || height <= 0 {
		return physics.Capture{}, fmt.Errorf("invalid capture size %dx%d", width, height)
	}
	inv, err := proj.Mul(view).Inverse()
	if err != nil {
		return physics.Capture{}, fmt.Errorf("invert view projection: %w", err)
	}
	near := proj[14] / (proj[10] - 1)
	far := proj[14] / (proj[10] + 1)

	capture := physics.Capture{
		Width:  width,
		Height: height,
		RGBA:   make([]uint8, width*height*4),
		Depth:  make([]float32, width*height),
	}
	for py := 0; py < height; py++ {
		ndcY := 1 - 2*(float64(py)+0.5)/float64(height)
		for px := 0; px < width; px++ {
			ndcX := 2*(float64(px)+0.5)/float64(width) - 1
			origin := unproject(inv, ndcX, ndcY, -1)
			dir := r3.Sub(unproject(inv, ndcX, ndcY, 1), origin)

			color := [3]float64{float64(SkyColor[0]) / 255, float64(SkyColor[1]) / 255, float64(SkyColor[2]) / 255}
			depth := 1.0
			if t, c, ok := trace(boxes, origin, dir); ok {
				hit := r3.Add(origin, r3.Scale(t, dir))
				eye := view.Transform([4]float64{hit.X, hit.Y, hit.Z, 1})
				depth = physics.NormalizedDepth(-eye[2], near, far)
				color = c
			}

			i := py*width + px
			capture.RGBA[i*4+0] = toByte(color[0])
			capture.RGBA[i*4+1] = toByte(color[1])
			capture.RGBA[i*4+2] = toByte(color[2])
			capture.RGBA[i*4+3] = 255
			capture.Depth[i] = float32(depth)
		}
	}
	return capture, nil
}

// trace returns the nearest hit parameter in [0,1] along origin+t*dir.
func trace(boxes []physics.StaticBody, origin, dir r3.Vec) (float64, [3]float64, bool) {
	best := math.Inf(1)
	var color [3]float64

	if dir.Z < 0 && origin.Z > 0 {
		t := -origin.Z / dir.Z
		if t <= 1 {
			best = t
			p := r3.Add(origin, r3.Scale(t, dir))
			if (int(math.Floor(p.X))+int(math.Floor(p.Y)))%2 == 0 {
				color = groundA
			} else {
				color = groundB
			}
		}
	}

	for _, b := range boxes {
		box := r3.Box{Min: r3.Sub(b.Center, b.HalfExtents), Max: r3.Add(b.Center, b.HalfExtents)}
		t, normal, ok := intersectBox(box, origin, dir)
		if !ok || t >= best {
			continue
		}
		best = t
		shade := 0.55 + 0.45*math.Abs(r3.Dot(normal, lightDir))
		color = [3]float64{b.Color[0] * shade, b.Color[1] * shade, b.Color[2] * shade}
	}
	if math.IsInf(best, 1) {
		return 0, color, false
	}
	return best, color, true
}

// intersectBox is the slab test; it returns the entry parameter and face normal.
func intersectBox(box r3.Box, origin, dir r3.Vec) (float64, r3.Vec, bool) {
	tmin, tmax := 0.0, 1.0
	var normal r3.Vec
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
	hi := [3]float64{box.Max.X, box.Max.Y, box.Max.Z}
	for axis := 0; axis < 3; axis++ {
		if math.Abs(d[axis]) < 1e-12 {
			if o[axis] < lo[axis] || o[axis] > hi[axis] {
				return 0, r3.Vec{}, false
			}
			continue
		}
		t1 := (lo[axis] - o[axis]) / d[axis]
		t2 := (hi[axis] - o[axis]) / d[axis]
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}
		if t1 > tmin {
			tmin = t1
			normal = axisVec(axis, sign)
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, r3.Vec{}, false
		}
	}
	return tmin, normal, true
}

func axisVec(axis int, sign float64) r3.Vec {
	switch axis {
	case 0:
		return r3.Vec{X: sign}
	case 1:
		return r3.Vec{Y: sign}
	default:
		return r3.Vec{Z: sign}
	}
}

func unproject(inv physics.Mat4, x, y, z float64) r3.Vec {
	p := inv.Transform([4]float64{x, y, z, 1})
	return r3.Vec{X: p[0] / p[3], Y: p[1] / p[3], Z: p[2] / p[3]}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
