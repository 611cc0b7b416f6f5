// Package mazeplot draws a top-down figure of the T-maze arena with
// optional goal markers, alcove exit lines and vehicle trajectories.
package mazeplot

import (
	"errors"
	"image"
	"io"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"tmaze/internal/maze"
)

const (
	DefaultScale  = 24.0
	DefaultMargin = 1.0
)

var ErrEmptyLayout = errors.New("layout has no walls")

type Options struct {
	// Scale is pixels per world unit.
	Scale float64
	// Margin is world units of padding around the walls.
	Margin     float64
	ExitLines  bool
	Goals      []r2.Vec
	Trajectory [][2]float64
	Title      string
}

type canvas struct {
	dc     *gg.Context
	lo, hi r2.Vec
	scale  float64
	margin float64
}

func (c canvas) px(p r2.Vec) (float64, float64) {
	return (p.X - c.lo.X + c.margin) * c.scale, (c.hi.Y - p.Y + c.margin) * c.scale
}

// Draw renders the layout into an RGBA image.
func Draw(layout maze.Layout, opts Options) (image.Image, error) {
	c, err := render(layout, opts)
	if err != nil {
		return nil, err
	}
	return c.dc.Image(), nil
}

// EncodePNG renders the layout and writes it as PNG.
func EncodePNG(w io.Writer, layout maze.Layout, opts Options) error {
	c, err := render(layout, opts)
	if err != nil {
		return err
	}
	return c.dc.EncodePNG(w)
}

// SavePNG renders the layout to a PNG file.
func SavePNG(path string, layout maze.Layout, opts Options) error {
	c, err := render(layout, opts)
	if err != nil {
		return err
	}
	return c.dc.SavePNG(path)
}

func render(layout maze.Layout, opts Options) (canvas, error) {
	if len(layout.Walls) == 0 {
		return canvas{}, ErrEmptyLayout
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	} else if opts.Margin == 0 {
		opts.Margin = DefaultMargin
	}

	lo, hi := layout.Bounds()
	w := int((hi.X - lo.X + 2*opts.Margin) * opts.Scale)
	h := int((hi.Y - lo.Y + 2*opts.Margin) * opts.Scale)
	c := canvas{dc: gg.NewContext(w, h), lo: lo, hi: hi, scale: opts.Scale, margin: opts.Margin}

	c.dc.SetRGB(1, 1, 1)
	c.dc.Clear()

	for _, wall := range layout.Walls {
		b := wall.Box()
		x, y := c.px(r2.Vec{X: b.Min.X, Y: b.Max.Y})
		c.dc.DrawRectangle(x, y, (b.Max.X-b.Min.X)*c.scale, (b.Max.Y-b.Min.Y)*c.scale)
		c.dc.SetRGBA(wall.Color[0], wall.Color[1], wall.Color[2], wall.Color[3])
		c.dc.Fill()
	}

	if opts.ExitLines {
		c.dc.SetRGB(0.1, 0.6, 0.1)
		for _, line := range maze.ExitLines(layout.Zoom) {
			x, y := c.px(r2.Vec{X: line.Min.X, Y: line.Max.Y})
			height := max((line.Max.Y-line.Min.Y)*c.scale, 1)
			c.dc.DrawRectangle(x, y, (line.Max.X-line.Min.X)*c.scale, height)
			c.dc.Fill()
		}
	}

	radius := maze.GoalThreshold * layout.Zoom * c.scale
	for _, g := range opts.Goals {
		x, y := c.px(g)
		c.dc.DrawRectangle(x-radius, y-radius, 2*radius, 2*radius)
		c.dc.SetRGBA(1, 0.84, 0, 0.5)
		c.dc.Fill()
	}

	if len(opts.Trajectory) > 0 {
		c.dc.ClearPath()
		for _, p := range opts.Trajectory {
			c.dc.LineTo(c.px(r2.Vec{X: p[0], Y: p[1]}))
		}
		c.dc.SetRGB(0.05, 0.05, 0.05)
		c.dc.SetLineWidth(2)
		c.dc.Stroke()

		first := opts.Trajectory[0]
		x, y := c.px(r2.Vec{X: first[0], Y: first[1]})
		c.dc.DrawCircle(x, y, 4)
		c.dc.SetRGB(0.1, 0.7, 0.1)
		c.dc.Fill()
		last := opts.Trajectory[len(opts.Trajectory)-1]
		x, y = c.px(r2.Vec{X: last[0], Y: last[1]})
		c.dc.DrawCircle(x, y, 4)
		c.dc.SetRGB(0.8, 0.1, 0.1)
		c.dc.Fill()
	}

	if opts.Title != "" {
		c.dc.SetRGB(0, 0, 0)
		c.dc.DrawStringAnchored(opts.Title, float64(w)/2, opts.Margin*c.scale/2, 0.5, 0.5)
	}
	return c, nil
}
