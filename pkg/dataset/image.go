package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/tensor"
)

// loadGray decodes an image file and converts it to 8-bit grayscale with its
// origin at (0,0).
func loadGray(path string) (*image.Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return toGray(img), nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// stackToTensor converts an 8-bit stack into a channel-first (C,H,W) tensor
// holding raw intensities 0..255.
func stackToTensor(s *models.Stack) *tensor.Dense {
	w, h := s.Size()
	t := tensor.New(s.Channels(), h, w)
	data := t.Data()
	for c, p := range s.Planes {
		base := c * h * w
		for y := 0; y < h; y++ {
			row := p.Pix[y*p.Stride : y*p.Stride+w]
			for x, v := range row {
				data[base+y*w+x] = float64(v)
			}
		}
	}
	return t
}
