// Package heatmap encodes keypoints as CenterNet-style Gaussian heatmap targets.
//
// A keypoint is stamped onto its level's channel as a 2D Gaussian whose radius
// is derived from a target footprint and a minimum overlap, so that a
// prediction displaced by up to that radius still overlaps the true box by at
// least the requested IoU.
package heatmap

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinOverlap is the IoU threshold used when none is configured.
const DefaultMinOverlap = 0.7

// GaussianRadius returns the Gaussian radius for a height×width footprint.
//
// It solves the three CenterNet placement cases (both corners displaced
// inward, both outward, one in and one out) and returns the smallest root.
// The roots are (b + sqrt(b²-4ac)) / 2 without the 2a divisor, matching the
// CenterNet reference encoder.
func GaussianRadius(height, width, minOverlap float64) float64 {
	a1 := 1.0
	b1 := height + width
	c1 := width * height * (1 - minOverlap) / (1 + minOverlap)
	sq1 := math.Sqrt(b1*b1 - 4*a1*c1)
	r1 := (b1 + sq1) / 2

	a2 := 4.0
	b2 := 2 * (height + width)
	c2 := (1 - minOverlap) * width * height
	sq2 := math.Sqrt(b2*b2 - 4*a2*c2)
	r2 := (b2 + sq2) / 2

	a3 := 4 * minOverlap
	b3 := -2 * minOverlap * (height + width)
	c3 := (minOverlap - 1) * width * height
	sq3 := math.Sqrt(b3*b3 - 4*a3*c3)
	r3 := (b3 + sq3) / 2

	return math.Min(r1, math.Min(r2, r3))
}

// Radius computes the integer stamp radius for a heatmap footprint given in
// input pixels. The footprint is divided by stride first; negative results clamp to 0.
func Radius(heatmapSize [2]int, stride int, minOverlap float64) int {
	h := float64(heatmapSize[0] / stride)
	w := float64(heatmapSize[1] / stride)
	r := int(GaussianRadius(h, w, minOverlap))
	if r < 0 {
		return 0
	}
	return r
}

// Gaussian2D builds a rows×cols kernel centred on its middle element.
// Entries smaller than machine epsilon times the peak are set to zero.
func Gaussian2D(rows, cols int, sigma float64) *mat.Dense {
	m := float64(rows-1) / 2
	n := float64(cols-1) / 2
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		y := float64(i) - m
		for j := 0; j < cols; j++ {
			x := float64(j) - n
			data[i*cols+j] = math.Exp(-(x*x + y*y) / (2 * sigma * sigma))
		}
	}

	cutoff := epsilon * floats.Max(data)
	for i, v := range data {
		if v < cutoff {
			data[i] = 0
		}
	}
	return mat.NewDense(rows, cols, data)
}

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16

// DrawGaussian stamps a Gaussian of the given radius onto h at (cx, cy),
// scaled by k, keeping the element-wise maximum with existing values.
//
// The centre is rounded half-to-even to the nearest pixel. Both the kernel and
// the destination are clipped to the canvas; when nothing overlaps the call is
// a no-op. The same matrix is returned for chaining.
func DrawGaussian(h *mat.Dense, cx, cy float64, radius int, k float64) *mat.Dense {
	if h.IsEmpty() || radius < 0 {
		return h
	}
	diameter := 2*radius + 1
	kernel := Gaussian2D(diameter, diameter, float64(diameter)/6)

	x := int(math.RoundToEven(cx))
	y := int(math.RoundToEven(cy))
	height, width := h.Dims()

	x0, x1 := max(x-radius, 0), min(x+radius+1, width)
	y0, y1 := max(y-radius, 0), min(y+radius+1, height)
	if x0 >= x1 || y0 >= y1 {
		return h
	}

	// kernel coordinates of the top-left clipped pixel
	kx := x0 - (x - radius)
	ky := y0 - (y - radius)
	for row := y0; row < y1; row++ {
		for col := x0; col < x1; col++ {
			v := kernel.At(ky+row-y0, kx+col-x0) * k
			if v > h.At(row, col) {
				h.Set(row, col, v)
			}
		}
	}
	return h
}
