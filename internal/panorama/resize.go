package panorama

import "math"

// ResizeBilinear resamples a row-major plane with half-pixel centers and
// edge clamping, matching OpenCV's INTER_LINEAR.
func ResizeBilinear(src []float32, sw, sh, dw, dh int) []float32 {
	xs, xw := linearTaps(sw, dw)
	ys, yw := linearTaps(sh, dh)

	dst := make([]float32, dw*dh)
	for dy := 0; dy < dh; dy++ {
		y0 := ys[dy]
		y1 := min(y0+1, sh-1)
		wy := yw[dy]
		for dx := 0; dx < dw; dx++ {
			x0 := xs[dx]
			x1 := min(x0+1, sw-1)
			wx := xw[dx]
			top := float64(src[y0*sw+x0])*(1-wx) + float64(src[y0*sw+x1])*wx
			bottom := float64(src[y1*sw+x0])*(1-wx) + float64(src[y1*sw+x1])*wx
			dst[dy*dw+dx] = float32(top*(1-wy) + bottom*wy)
		}
	}
	return dst
}

func linearTaps(srcSize, dstSize int) ([]int, []float64) {
	scale := float64(srcSize) / float64(dstSize)
	idx := make([]int, dstSize)
	weight := make([]float64, dstSize)
	for d := 0; d < dstSize; d++ {
		f := (float64(d)+0.5)*scale - 0.5
		s := int(math.Floor(f))
		f -= float64(s)
		if s < 0 {
			s, f = 0, 0
		}
		if s >= srcSize-1 {
			s, f = srcSize-1, 0
		}
		idx[d] = s
		weight[d] = f
	}
	return idx, weight
}
