package physics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mat4 is a 4x4 matrix stored column-major, element (row r, col c) at c*4+r.
type Mat4 [16]float64

func Identity() Mat4 {
	return Mat4{0: 1, 5: 1, 10: 1, 15: 1}
}

func (m Mat4) At(r, c int) float64 {
	return m[c*4+r]
}

// LookAt builds a right-handed view matrix with the camera looking down -z.
func LookAt(eye, target, up r3.Vec) Mat4 {
	f := r3.Unit(r3.Sub(target, eye))
	s := r3.Unit(r3.Cross(f, up))
	u := r3.Cross(s, f)

	var m Mat4
	m[0], m[4], m[8] = s.X, s.Y, s.Z
	m[1], m[5], m[9] = u.X, u.Y, u.Z
	m[2], m[6], m[10] = -f.X, -f.Y, -f.Z
	m[12] = -r3.Dot(s, eye)
	m[13] = -r3.Dot(u, eye)
	m[14] = r3.Dot(f, eye)
	m[15] = 1
	return m
}

// PerspectiveFOV builds an OpenGL-style projection from a vertical field of
// view in degrees.
func PerspectiveFOV(fovDeg, aspect, near, far float64) Mat4 {
	yScale := 1 / math.Tan(fovDeg*math.Pi/360)
	xScale := yScale / aspect

	var m Mat4
	m[0] = xScale
	m[5] = yScale
	m[10] = (far + near) / (near - far)
	m[11] = -1
	m[14] = 2 * far * near / (near - far)
	return m
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m.At(r, k) * n.At(k, c)
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Transform applies m to the homogeneous point v.
func (m Mat4) Transform(v [4]float64) [4]float64 {
	var out [4]float64
	for r := 0; r < 4; r++ {
		for k := 0; k < 4; k++ {
			out[r] += m.At(r, k) * v[k]
		}
	}
	return out
}

var ErrSingular = errors.New("matrix is singular")

func (m Mat4) Inverse() (Mat4, error) {
	dense := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			dense.Set(r, c, m.At(r, c))
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		return Mat4{}, errors.Join(ErrSingular, err)
	}
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = inv.At(r, c)
		}
	}
	return out, nil
}

// NormalizedDepth maps an eye-space distance to the [0,1] depth buffer value
// produced by PerspectiveFOV with the same planes.
func NormalizedDepth(distance, near, far float64) float64 {
	if distance <= near {
		return 0
	}
	if distance >= far {
		return 1
	}
	return far * (distance - near) / (distance * (far - near))
}

// LinearDepth inverts NormalizedDepth.
func LinearDepth(d, near, far float64) float64 {
	return far * near / (far - (far-near)*d)
}
