package heatmap

import (
	"fmt"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/tensor"
)

// Encoder turns a labeled keypoint set into a (levels, H/stride, W/stride)
// heatmap. It is immutable after construction and safe for concurrent use.
type Encoder struct {
	stride   int
	radius   int
	channels int
}

// NewEncoder derives one shared stamp radius from heatmapSize (in input
// pixels), stride and minOverlap.
func NewEncoder(stride int, heatmapSize [2]int, minOverlap float64) (*Encoder, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}
	if minOverlap <= 0 || minOverlap >= 1 {
		return nil, fmt.Errorf("min overlap must be in (0,1), got %g", minOverlap)
	}
	if heatmapSize[0] <= 0 || heatmapSize[1] <= 0 {
		return nil, fmt.Errorf("heatmap size must be positive, got %v", heatmapSize)
	}
	return &Encoder{
		stride:   stride,
		radius:   Radius(heatmapSize, stride, minOverlap),
		channels: models.NumLevels,
	}, nil
}

// Stride returns the downsampling factor.
func (e *Encoder) Stride() int { return e.stride }

// Radius returns the shared stamp radius in heatmap pixels.
func (e *Encoder) Radius() int { return e.radius }

// Encode stamps one Gaussian per point onto its level channel. Coordinates are
// in input pixels of a width×height image.
func (e *Encoder) Encode(width, height int, points []models.LabeledPoint) *tensor.Dense {
	hm := tensor.New(e.channels, height/e.stride, width/e.stride)
	if hm.Len() == 0 {
		return hm
	}
	s := float64(e.stride)
	for _, p := range points {
		if !p.Level.Valid() {
			continue
		}
		DrawGaussian(hm.Matrix(int(p.Level)), p.X/s, p.Y/s, e.radius, 1)
	}
	return hm
}
