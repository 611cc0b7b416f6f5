// Package panorama synthesizes the vehicle's 360 degree visual observation
// from four pinhole captures stitched into one 16x80 strip.
package panorama

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
)

const (
	// Size is the side of one resized capture.
	Size = 16
	// Width is the stitched panorama width.
	Width = 5 * Size
	// CaptureSize is the side of the raw capture requested from the renderer.
	CaptureSize = 50

	FOVDegrees = 90.0
	EyeHeight  = 1.0
	NearFactor = 0.025
	FarFactor  = 20.0
)

// Offsets are the capture yaw offsets in degrees, in capture order.
var Offsets = [4]float64{0, 90, 180, 270}

// Renderer draws the scene for a view/projection pair.
type Renderer interface {
	RenderView(ctx context.Context, view, proj physics.Mat4, width, height int) (physics.Capture, error)
}

// Frame is one resized capture for a yaw offset.
type Frame struct {
	YawOffset float64
	// RGB holds three Size*Size planes in [0,1].
	RGB [3][]float32
	// Depth is the depth-sensory plane, nil when depth was not requested.
	Depth []float32
}

// Image is a channels-first float32 tensor.
type Image struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func NewImage(channels, height, width int) *Image {
	return &Image{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

func (im *Image) At(c, y, x int) float32 {
	return im.Data[(c*im.Height+y)*im.Width+x]
}

func (im *Image) Set(c, y, x int, v float32) {
	im.Data[(c*im.Height+y)*im.Width+x] = v
}

// Shape returns (channels, height, width).
func (im *Image) Shape() [3]int {
	return [3]int{im.Channels, im.Height, im.Width}
}

// Planes returns near and far clipping planes for a zoom coefficient.
func Planes(zoom float64) (near, far float64) {
	return NearFactor * zoom, FarFactor * zoom
}

// DepthSensory maps a true depth to (0,1], decaying with distance.
func DepthSensory(trueDepth, zoom float64) float64 {
	return math.Exp(-trueDepth / zoom / 3)
}

// CameraFor returns the view matrix of the capture at the given yaw offset.
func CameraFor(pose physics.Pose, offsetDeg float64) physics.Mat4 {
	q := physics.Compose(physics.YawRotation(offsetDeg*math.Pi/180), pose.Orientation)
	forward := q.Rotate(r3.Vec{X: 1})
	up := q.Rotate(r3.Vec{Z: 1})
	eye := r3.Add(pose.Position, r3.Vec{Z: EyeHeight})
	return physics.LookAt(eye, r3.Add(eye, forward), up)
}

// Capture renders and resizes the view at one yaw offset.
func Capture(ctx context.Context, r Renderer, pose physics.Pose, zoom, offsetDeg float64, depth bool) (Frame, error) {
	near, far := Planes(zoom)
	view := CameraFor(pose, offsetDeg)
	proj := physics.PerspectiveFOV(FOVDegrees, 1, near, far)

	raw, err := r.RenderView(ctx, view, proj, CaptureSize, CaptureSize)
	if err != nil {
		return Frame{}, fmt.Errorf("render offset %.0f: %w", offsetDeg, err)
	}
	if err := raw.Validate(); err != nil {
		return Frame{}, fmt.Errorf("render offset %.0f: %w", offsetDeg, err)
	}

	pixels := raw.Width * raw.Height
	frame := Frame{YawOffset: offsetDeg}
	plane := make([]float32, pixels)
	for c := 0; c < 3; c++ {
		for i := 0; i < pixels; i++ {
			plane[i] = float32(raw.RGBA[i*4+c]) / 255
		}
		frame.RGB[c] = ResizeBilinear(plane, raw.Width, raw.Height, Size, Size)
	}

	if depth {
		for i, d := range raw.Depth {
			dist := physics.LinearDepth(float64(d), near, far)
			plane[i] = float32(DepthSensory(dist, zoom))
		}
		frame.Depth = ResizeBilinear(plane, raw.Width, raw.Height, Size, Size)
	}
	return frame, nil
}

// Synthesize captures the four yaw offsets and stitches them.
func Synthesize(ctx context.Context, r Renderer, pose physics.Pose, zoom float64, depth bool) (*Image, error) {
	var frames [4]Frame
	for i, offset := range Offsets {
		frame, err := Capture(ctx, r, pose, zoom, offset, depth)
		if err != nil {
			return nil, err
		}
		frames[i] = frame
	}
	return Stitch(frames, depth), nil
}

// Stitch lays out frames ordered as Offsets left to right as
// 180 | 90 | 0 | 270 | 180. The forward view is centered and the rear view
// wraps on both edges, so columns 8:16 continue into the 90 degree view and
// columns 64:72 continue out of the 270 degree view.
func Stitch(frames [4]Frame, depth bool) *Image {
	channels := 3
	if depth {
		channels = 4
	}
	layout := [5]int{2, 1, 0, 3, 2}

	img := NewImage(channels, Size, Width)
	for slot, idx := range layout {
		f := frames[idx]
		x0 := slot * Size
		for c := 0; c < channels; c++ {
			src := f.Depth
			if c < 3 {
				src = f.RGB[c]
			}
			for y := 0; y < Size; y++ {
				for x := 0; x < Size; x++ {
					img.Set(c, y, x0+x, src[y*Size+x])
				}
			}
		}
	}
	return img
}
