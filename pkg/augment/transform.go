// Package augment provides the joint image + keypoint transforms applied to
// dataset examples before heatmap encoding.
//
// A Transform receives every channel of an example together with its labeled
// keypoints and returns a consistently transformed pair. Keypoints that leave
// the output canvas are dropped; datasets treat their levels as absent.
// Implementations must be safe for concurrent use.
package augment

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"lsdckeypoints/internal/models"
)

// Sample is the unit a Transform maps.
type Sample struct {
	Image     *models.Stack
	Keypoints []models.LabeledPoint
}

// Transform jointly maps an image stack and its keypoints.
type Transform interface {
	Apply(s Sample) (Sample, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(s Sample) (Sample, error)

// Apply calls f(s).
func (f TransformFunc) Apply(s Sample) (Sample, error) { return f(s) }

// Identity returns its input unchanged.
type Identity struct{}

// Apply returns s.
func (Identity) Apply(s Sample) (Sample, error) { return s, nil }

// Compose applies transforms in order.
type Compose []Transform

// Apply runs every transform, stopping at the first error.
func (c Compose) Apply(s Sample) (Sample, error) {
	var err error
	for i, t := range c {
		if s, err = t.Apply(s); err != nil {
			return s, fmt.Errorf("transform %d: %w", i, err)
		}
	}
	return s, nil
}

// Resize scales every plane to Width×Height with bilinear interpolation and
// scales keypoints accordingly.
type Resize struct {
	Width, Height int
}

// Apply resizes s.
func (r Resize) Apply(s Sample) (Sample, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return s, fmt.Errorf("resize to %dx%d", r.Width, r.Height)
	}
	w, h := s.Image.Size()
	if w == 0 || h == 0 {
		return s, fmt.Errorf("resize of empty image")
	}
	out := &models.Stack{Planes: make([]*image.Gray, len(s.Image.Planes))}
	for i, p := range s.Image.Planes {
		out.Planes[i] = ResizeGray(p, r.Width, r.Height)
	}
	sx := float64(r.Width) / float64(w)
	sy := float64(r.Height) / float64(h)
	pts := make([]models.LabeledPoint, len(s.Keypoints))
	for i, p := range s.Keypoints {
		pts[i] = models.LabeledPoint{Level: p.Level, X: p.X * sx, Y: p.Y * sy}
	}
	return Sample{Image: out, Keypoints: pts}, nil
}

// ResizeGray scales src to width×height with bilinear interpolation.
func ResizeGray(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if src.Bounds().Eq(dst.Bounds()) {
		copy(dst.Pix, src.Pix)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// warp applies the source-to-destination affine m to every plane and keypoint,
// keeping the canvas size and dropping keypoints that fall outside it.
func warp(s Sample, m f64.Aff3) Sample {
	w, h := s.Image.Size()
	out := &models.Stack{Planes: make([]*image.Gray, len(s.Image.Planes))}
	for i, p := range s.Image.Planes {
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Transform(dst, m, p, p.Bounds(), draw.Src, nil)
		out.Planes[i] = dst
	}

	pts := make([]models.LabeledPoint, 0, len(s.Keypoints))
	for _, p := range s.Keypoints {
		x := m[0]*p.X + m[1]*p.Y + m[2]
		y := m[3]*p.X + m[4]*p.Y + m[5]
		if x < 0 || y < 0 || x >= float64(w) || y >= float64(h) {
			continue
		}
		pts = append(pts, models.LabeledPoint{Level: p.Level, X: x, Y: y})
	}
	return Sample{Image: out, Keypoints: pts}
}
