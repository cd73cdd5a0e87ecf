package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/dataset"
	"lsdckeypoints/pkg/heatmap"
	"lsdckeypoints/pkg/tensor"
)

// testItem builds a 2-channel 40×40 item with a keypoint at (20, 12) for L1/L2
func testItem(t *testing.T) dataset.Item {
	t.Helper()
	width, height := 40, 40

	img := tensor.New(2, height, width)
	for c := 0; c < 2; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Set(float64(50*c+x), c, y, x)
			}
		}
	}

	enc, err := heatmap.NewEncoder(4, [2]int{20, 20}, heatmap.DefaultMinOverlap)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	points := []models.LabeledPoint{{Level: models.L1L2, X: 20, Y: 12}}

	return dataset.Item{
		Image:     img,
		Heatmap:   enc.Encode(width, height, points),
		StudyID:   "1",
		Keypoints: models.FromLabeled(points),
	}
}

// TestExtractChannel verifies stretching of image channels and scaling of heatmaps
func TestExtractChannel(t *testing.T) {
	viewer := NewViewer(testItem(t))

	img, err := viewer.ExtractChannel(KindImage, 1)
	if err != nil {
		t.Fatalf("Failed to extract image channel: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Errorf("Expected 40x40 channel, got %dx%d", b.Dx(), b.Dy())
	}
	if got := img.Gray16At(0, 5).Y; got != 0 {
		t.Errorf("Expected darkest column to map to 0, got %d", got)
	}
	if got := img.Gray16At(39, 5).Y; got != 65535 {
		t.Errorf("Expected brightest column to map to 65535, got %d", got)
	}

	hm, err := viewer.ExtractChannel(KindHeatmap, int(models.L1L2))
	if err != nil {
		t.Fatalf("Failed to extract heatmap channel: %v", err)
	}
	if b := hm.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Errorf("Expected 10x10 heatmap, got %dx%d", b.Dx(), b.Dy())
	}
	if got := hm.Gray16At(5, 3).Y; got != 65535 {
		t.Errorf("Expected peak 65535 at (5,3), got %d", got)
	}
	if got := hm.Gray16At(0, 9).Y; got != 0 {
		t.Errorf("Expected 0 far from the peak, got %d", got)
	}

	if _, err := viewer.ExtractChannel("volume", 0); err == nil {
		t.Error("Expected error for invalid kind, got nil")
	}
	if _, err := viewer.ExtractChannel(KindImage, 2); err == nil {
		t.Error("Expected error for out of range channel, got nil")
	}
}

// TestHeatmapOverlay verifies overlay size and keypoint marker
func TestHeatmapOverlay(t *testing.T) {
	viewer := NewViewer(testItem(t))

	overlay, err := viewer.HeatmapOverlay(0, int(models.L1L2))
	if err != nil {
		t.Fatalf("Failed to build overlay: %v", err)
	}
	if b := overlay.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Errorf("Expected 40x40 overlay, got %dx%d", b.Dx(), b.Dy())
	}
	if got := overlay.RGBAAt(20, 12); got != markerColor {
		t.Errorf("Expected marker at keypoint, got %v", got)
	}

	// near the peak red dominates; away from it the pixel stays gray
	hot := overlay.RGBAAt(22, 14)
	if hot.R <= hot.B {
		t.Errorf("Expected red-dominant pixel near peak, got %v", hot)
	}
	cold := overlay.RGBAAt(5, 35)
	if cold.R != cold.G || cold.G != cold.B {
		t.Errorf("Expected gray pixel away from peak, got %v", cold)
	}

	if _, err := viewer.HeatmapOverlay(0, 5); err == nil {
		t.Error("Expected error for invalid level, got nil")
	}
}

// TestSaveChannelSequence verifies that every channel is written as PNG
func TestSaveChannelSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	viewer := NewViewer(testItem(t))
	outputDir := filepath.Join(t.TempDir(), "channels")

	if err := viewer.SaveChannelSequence(KindHeatmap, outputDir); err != nil {
		t.Fatalf("Failed to save heatmap sequence: %v", err)
	}
	for c := 0; c < models.NumLevels; c++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("heatmap_%03d.png", c))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected channel file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveOverlays(outputDir); err != nil {
		t.Fatalf("Failed to save overlays: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "overlay_0.png")); err != nil {
		t.Errorf("Expected overlay file: %v", err)
	}

	if err := viewer.SaveChannelSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid kind, got nil")
	}
}
