package dataset

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/annotation"
)

// SingleSlice yields one grayscale slice per row with absolute keypoints taken
// from the <level>_x / <level>_y columns.
type SingleSlice struct {
	base
}

// NewSingleSlice validates opts and builds the dataset.
func NewSingleSlice(table *annotation.Table, opts Options) (*SingleSlice, error) {
	b, err := newBase(table, opts, "dataset.single")
	if err != nil {
		return nil, err
	}
	return &SingleSlice{base: b}, nil
}

// GetItem loads row index, applies the transform and encodes its heatmap.
// Keypoints are rounded to whole pixels before the transform.
func (d *SingleSlice) GetItem(ctx context.Context, index int) (Item, error) {
	rec, err := d.row(ctx, index)
	if err != nil {
		return Item{}, err
	}

	path := filepath.Join(d.root, rec.ImagePath)
	img, err := loadGray(path)
	if err != nil {
		return Item{}, fmt.Errorf("failed to load image for study %s: %w", rec.StudyID, err)
	}

	var points []models.LabeledPoint
	for _, level := range models.Levels {
		kp := rec.Absolute[level]
		if !kp.Present {
			continue
		}
		points = append(points, models.LabeledPoint{
			Level: level,
			X:     roundHalfEven(kp.X),
			Y:     roundHalfEven(kp.Y),
		})
	}

	d.log.Debug("loaded slice", "study_id", rec.StudyID, "path", path, "keypoints", len(points))
	return d.finish(rec.StudyID, &models.Stack{Planes: []*image.Gray{img}}, points)
}
