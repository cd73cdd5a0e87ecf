// Package visualization renders dataset items for inspection: single image or
// heatmap channels as 16-bit grayscale, and heatmap overlays with keypoint
// markers.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/dataset"
	"lsdckeypoints/pkg/tensor"
)

// Channel kinds accepted by ExtractChannel and SaveChannelSequence.
const (
	KindImage   = "image"
	KindHeatmap = "heatmap"
)

// overlayAlpha is the maximum heatmap opacity of an overlay.
const overlayAlpha = 0.6

// markerColor is used for keypoint crosses.
var markerColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Viewer renders one encoded item.
type Viewer struct {
	image     *tensor.Dense
	heatmap   *tensor.Dense
	keypoints models.Keypoints
}

// NewViewer creates a viewer for item.
func NewViewer(item dataset.Item) *Viewer {
	return &Viewer{
		image:     item.Image,
		heatmap:   item.Heatmap,
		keypoints: item.Keypoints,
	}
}

func (v *Viewer) channels(kind string) (*tensor.Dense, error) {
	var t *tensor.Dense
	switch kind {
	case KindImage:
		t = v.image
	case KindHeatmap:
		t = v.heatmap
	default:
		return nil, fmt.Errorf("invalid kind: %s (must be %s or %s)", kind, KindImage, KindHeatmap)
	}
	if t == nil || t.Rank() != 3 {
		return nil, fmt.Errorf("%s tensor is not (C, H, W)", kind)
	}
	return t, nil
}

// ExtractChannel returns channel c of the image or heatmap tensor. Image
// channels are min-max stretched; heatmap values in [0, 1] map to the full
// 16-bit range.
func (v *Viewer) ExtractChannel(kind string, c int) (*image.Gray16, error) {
	t, err := v.channels(kind)
	if err != nil {
		return nil, err
	}
	if c < 0 || c >= t.Dim(0) {
		return nil, fmt.Errorf("channel %d exceeds %d %s channels", c, t.Dim(0), kind)
	}
	h, w := t.Dim(1), t.Dim(2)
	plane := t.Data()[c*h*w : (c+1)*h*w]

	lo, span := 0.0, 1.0
	if kind == KindImage && len(plane) > 0 {
		lo = floats.Min(plane)
		if d := floats.Max(plane) - lo; d > 0 {
			span = d
		}
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			value := (plane[y*w+x] - lo) / span
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*65535)))})
		}
	}
	return img, nil
}

// HeatmapOverlay blends heatmap channel level over image channel imageChannel
// and marks the keypoint of that level. The heatmap is upsampled with nearest
// neighbour to the image size. Hot pixels run from blue (low) to red (peak).
func (v *Viewer) HeatmapOverlay(imageChannel, level int) (*image.RGBA, error) {
	base, err := v.ExtractChannel(KindImage, imageChannel)
	if err != nil {
		return nil, err
	}
	hm, err := v.channels(KindHeatmap)
	if err != nil {
		return nil, err
	}
	if level < 0 || level >= hm.Dim(0) {
		return nil, fmt.Errorf("level %d exceeds %d heatmap channels", level, hm.Dim(0))
	}
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	hh, hw := hm.Dim(1), hm.Dim(2)
	heat := hm.Matrix(level)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := float64(base.Gray16At(x, y).Y) / 65535
			px := colorful.Color{R: g, G: g, B: g}
			if hw > 0 && hh > 0 {
				hv := heat.At(min(y*hh/h, hh-1), min(x*hw/w, hw-1))
				if hv > 0 {
					px = px.BlendRgb(colormap(hv), overlayAlpha*hv)
				}
			}
			out.Set(x, y, px.Clamped())
		}
	}

	if lvl := models.Level(level); lvl.Valid() {
		if kp := v.keypoints[lvl]; kp.Present {
			drawCross(out, int(math.Round(kp.X)), int(math.Round(kp.Y)), 3)
		}
	}
	return out, nil
}

// colormap maps [0, 1] to a blue-to-red hue ramp.
func colormap(v float64) colorful.Color {
	v = math.Max(0, math.Min(1, v))
	return colorful.Hsv(240*(1-v), 1, 1)
}

func drawCross(img *image.RGBA, cx, cy, size int) {
	for d := -size; d <= size; d++ {
		if p := image.Pt(cx+d, cy); p.In(img.Rect) {
			img.SetRGBA(p.X, p.Y, markerColor)
		}
		if p := image.Pt(cx, cy+d); p.In(img.Rect) {
			img.SetRGBA(p.X, p.Y, markerColor)
		}
	}
}

// SaveImage saves an image as PNG.
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveChannelSequence writes every channel of kind to outputDir as
// <kind>_NNN.png.
func (v *Viewer) SaveChannelSequence(kind string, outputDir string) error {
	t, err := v.channels(kind)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for c := 0; c < t.Dim(0); c++ {
		img, err := v.ExtractChannel(kind, c)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%03d.png", kind, c))
		if err := v.SaveImage(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveOverlays writes one overlay per level, built on the middle image channel,
// to outputDir as overlay_<level>.png.
func (v *Viewer) SaveOverlays(outputDir string) error {
	hm, err := v.channels(KindHeatmap)
	if err != nil {
		return err
	}
	im, err := v.channels(KindImage)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	mid := im.Dim(0) / 2
	for level := 0; level < hm.Dim(0); level++ {
		img, err := v.HeatmapOverlay(mid, level)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("overlay_%d.png", level))
		if err := v.SaveImage(img, filename); err != nil {
			return err
		}
	}
	return nil
}
