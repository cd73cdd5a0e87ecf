package dataset

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/annotation"
	"lsdckeypoints/pkg/augment"
)

// MultiOptions configure neighbour-slice stacking.
type MultiOptions struct {
	Options

	// NumSlices is the odd number of stacked slices
	NumSlices int

	// UseCenter centres the window on the middle slice of the series instead
	// of the annotated instance
	UseCenter bool

	// ImageSize is the canonical width and height every slice is resized to
	// before stacking; series can mix resolutions
	ImageSize [2]int
}

// DefaultMultiOptions returns a 3-slice window on 512×512 slices.
func DefaultMultiOptions() MultiOptions {
	return MultiOptions{
		Options:   DefaultOptions(),
		NumSlices: 3,
		ImageSize: [2]int{512, 512},
	}
}

// MultiSlice yields a stack of neighbouring slices per row with keypoints
// taken from the normalised <level>_nx / <level>_ny columns.
type MultiSlice struct {
	base
	numSlices int
	useCenter bool
	width     int
	height    int
}

// NewMultiSlice validates opts and builds the dataset. An even NumSlices is
// rejected here rather than at first use.
func NewMultiSlice(table *annotation.Table, opts MultiOptions) (*MultiSlice, error) {
	if opts.NumSlices <= 0 || opts.NumSlices%2 == 0 {
		return nil, fmt.Errorf("%w, got %d", ErrEvenSliceCount, opts.NumSlices)
	}
	if opts.ImageSize[0] <= 0 || opts.ImageSize[1] <= 0 {
		return nil, fmt.Errorf("dataset: image size must be positive, got %v", opts.ImageSize)
	}
	b, err := newBase(table, opts.Options, "dataset.multi")
	if err != nil {
		return nil, err
	}
	return &MultiSlice{
		base:      b,
		numSlices: opts.NumSlices,
		useCenter: opts.UseCenter,
		width:     opts.ImageSize[0],
		height:    opts.ImageSize[1],
	}, nil
}

// NumSlices returns the number of channels of every item.
func (d *MultiSlice) NumSlices() int {
	return d.numSlices
}

// GetItem resolves the base slice, stacks its neighbours and encodes the heatmap.
func (d *MultiSlice) GetItem(ctx context.Context, index int) (Item, error) {
	rec, err := d.row(ctx, index)
	if err != nil {
		return Item{}, err
	}

	series, err := ListSeries(filepath.Join(d.root, rec.ImageDir))
	if err != nil {
		return Item{}, fmt.Errorf("study %s: %w", rec.StudyID, err)
	}
	baseIdx, err := baseIndex(series, annotationRef{
		studyID:     rec.StudyID,
		instance:    rec.InstanceNumber,
		hasInstance: rec.HasInstance,
	}, d.useCenter)
	if err != nil {
		return Item{}, err
	}

	indices := SelectNeighbors(series.Len(), d.numSlices, baseIdx)
	stack := &models.Stack{Planes: make([]*image.Gray, len(indices))}
	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		img, err := loadGray(series.Slices[idx].Path)
		if err != nil {
			return Item{}, fmt.Errorf("failed to load slice %d of study %s: %w", idx, rec.StudyID, err)
		}
		stack.Planes[i] = augment.ResizeGray(img, d.width, d.height)
	}

	var points []models.LabeledPoint
	for _, level := range models.Levels {
		kp := rec.Normalized[level]
		if !kp.Present {
			continue
		}
		points = append(points, models.LabeledPoint{
			Level: level,
			X:     kp.X * float64(d.width),
			Y:     kp.Y * float64(d.height),
		})
	}

	d.log.Debug("stacked slices",
		"study_id", rec.StudyID,
		"base", baseIdx,
		"indices", indices,
		"series_len", series.Len())
	return d.finish(rec.StudyID, stack, points)
}
