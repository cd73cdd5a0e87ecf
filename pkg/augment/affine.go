package augment

import (
	"fmt"
	"image"
	"math"
	"math/rand/v2"

	"golang.org/x/image/math/f64"

	"lsdckeypoints/internal/models"
)

// Affine scales, rotates (degrees, counter-clockwise on screen) and translates
// (pixels) about the image centre. The output canvas keeps the input size.
type Affine struct {
	Scale      float64
	Rotate     float64
	TranslateX float64
	TranslateY float64
}

// Matrix returns the source-to-destination transform for a width×height canvas.
func (a Affine) Matrix(width, height int) f64.Aff3 {
	scale := a.Scale
	if scale == 0 {
		scale = 1
	}
	theta := -a.Rotate * math.Pi / 180
	cos, sin := math.Cos(theta)*scale, math.Sin(theta)*scale
	cx, cy := float64(width)/2, float64(height)/2
	return f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy + a.TranslateX,
		sin, cos, cy - sin*cx - cos*cy + a.TranslateY,
	}
}

// Apply warps s.
func (a Affine) Apply(s Sample) (Sample, error) {
	if a.Scale < 0 {
		return s, fmt.Errorf("negative affine scale %g", a.Scale)
	}
	w, h := s.Image.Size()
	if w == 0 || h == 0 {
		return s, fmt.Errorf("affine of empty image")
	}
	return warp(s, a.Matrix(w, h)), nil
}

// RandomAffine draws an Affine per call. Ranges are inclusive [min, max];
// TranslateFrac is the maximum shift as a fraction of each side. P is the
// probability of applying the transform at all.
type RandomAffine struct {
	ScaleRange    [2]float64
	RotateRange   [2]float64
	TranslateFrac float64
	P             float64
}

// Apply warps s with freshly sampled parameters. The top-level math/rand/v2
// source is used so concurrent calls need no locking.
func (r RandomAffine) Apply(s Sample) (Sample, error) {
	if rand.Float64() >= r.P {
		return s, nil
	}
	w, h := s.Image.Size()
	a := Affine{
		Scale:      uniform(r.ScaleRange, 1),
		Rotate:     uniform(r.RotateRange, 0),
		TranslateX: (rand.Float64()*2 - 1) * r.TranslateFrac * float64(w),
		TranslateY: (rand.Float64()*2 - 1) * r.TranslateFrac * float64(h),
	}
	return a.Apply(s)
}

func uniform(rng [2]float64, zero float64) float64 {
	if rng[0] == 0 && rng[1] == 0 {
		return zero
	}
	return rng[0] + rand.Float64()*(rng[1]-rng[0])
}

// HorizontalFlip mirrors every plane left-right with probability P. Disc
// levels are unchanged by a horizontal flip of a sagittal slice.
type HorizontalFlip struct {
	P float64
}

// Apply flips s.
func (f HorizontalFlip) Apply(s Sample) (Sample, error) {
	if rand.Float64() >= f.P {
		return s, nil
	}
	return flipX(s), nil
}

func flipX(s Sample) Sample {
	w, h := s.Image.Size()
	out := &models.Stack{Planes: make([]*image.Gray, len(s.Image.Planes))}
	for i, p := range s.Image.Planes {
		dst := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			srcRow := p.Pix[y*p.Stride : y*p.Stride+w]
			dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
			for x := 0; x < w; x++ {
				dstRow[w-1-x] = srcRow[x]
			}
		}
		out.Planes[i] = dst
	}
	pts := make([]models.LabeledPoint, len(s.Keypoints))
	for i, p := range s.Keypoints {
		pts[i] = models.LabeledPoint{Level: p.Level, X: float64(w-1) - p.X, Y: p.Y}
	}
	return Sample{Image: out, Keypoints: pts}
}
