// Package dataset builds keypoint training examples: it loads one slice (or a
// stack of neighbouring slices) per annotation row, applies an augmentation
// transform and encodes the keypoints as Gaussian heatmaps.
//
// Datasets hold only immutable configuration and a read-only annotation
// table, so GetItem may be called concurrently, out of order or repeatedly.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/annotation"
	"lsdckeypoints/pkg/augment"
	"lsdckeypoints/pkg/heatmap"
	"lsdckeypoints/pkg/logger"
	"lsdckeypoints/pkg/tensor"
)

var (
	// ErrEvenSliceCount is returned by NewMultiSlice for an even slice count;
	// no centred window exists for it.
	ErrEvenSliceCount = errors.New("dataset: num_slices must be odd")

	// ErrBaseInstanceNotFound means the annotated instance number is not present
	// in the series directory. It signals broken upstream data: the Loader stops
	// the whole run on it instead of skipping the example.
	ErrBaseInstanceNotFound = errors.New("dataset: base instance not found")

	// ErrEmptySeries is returned when a series directory holds no slice images.
	ErrEmptySeries = errors.New("dataset: no slice images")

	// ErrIndexOutOfRange is returned for an item index outside [0, Len).
	ErrIndexOutOfRange = errors.New("dataset: index out of range")
)

// Dataset is the capability shared by every dataset variant.
type Dataset interface {
	Len() int
	GetItem(ctx context.Context, index int) (Item, error)
}

// Item is one encoded training example.
type Item struct {
	// Image is (C, H, W) with raw 0..255 intensities
	Image *tensor.Dense

	// Heatmap is (5, H/stride, W/stride)
	Heatmap *tensor.Dense

	StudyID string

	// Keypoints are in the transformed image frame; levels dropped by the
	// transform or never annotated are absent
	Keypoints models.Keypoints
}

// KeypointArray returns keypoints in the legacy [5][2] form with -1 fill.
func (it Item) KeypointArray() [models.NumLevels][2]float64 {
	return it.Keypoints.Array()
}

// Options are shared by both dataset variants.
type Options struct {
	// ImageRoot is prepended to the paths stored in the annotation table
	ImageRoot string

	// HeatmapSize is the target footprint in input pixels used for the radius
	HeatmapSize [2]int

	// Stride is the input-to-heatmap downsampling factor
	Stride int

	// MinOverlap is the IoU threshold for the Gaussian radius
	MinOverlap float64

	// Transform is applied jointly to image and keypoints; nil means identity
	Transform augment.Transform

	Logger *slog.Logger
}

// DefaultOptions mirrors the training setup: 20×20 footprint at stride 4.
func DefaultOptions() Options {
	return Options{
		HeatmapSize: [2]int{20, 20},
		Stride:      4,
		MinOverlap:  heatmap.DefaultMinOverlap,
	}
}

// base holds what both variants share.
type base struct {
	table     *annotation.Table
	root      string
	encoder   *heatmap.Encoder
	transform augment.Transform
	log       *slog.Logger
}

func newBase(table *annotation.Table, opts Options, module string) (base, error) {
	if table == nil {
		return base{}, errors.New("dataset: nil annotation table")
	}
	enc, err := heatmap.NewEncoder(opts.Stride, opts.HeatmapSize, opts.MinOverlap)
	if err != nil {
		return base{}, fmt.Errorf("dataset: %w", err)
	}
	t := opts.Transform
	if t == nil {
		t = augment.Identity{}
	}
	return base{
		table:     table,
		root:      opts.ImageRoot,
		encoder:   enc,
		transform: t,
		log:       logger.Module(opts.Logger, module),
	}, nil
}

// Len returns the number of annotation rows.
func (b *base) Len() int {
	return b.table.Len()
}

// Radius returns the shared Gaussian stamp radius in heatmap pixels.
func (b *base) Radius() int {
	return b.encoder.Radius()
}

func (b *base) row(ctx context.Context, index int) (annotation.Record, error) {
	if err := ctx.Err(); err != nil {
		return annotation.Record{}, err
	}
	if index < 0 || index >= b.table.Len() {
		return annotation.Record{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, b.table.Len())
	}
	return b.table.Row(index)
}

// finish runs the transform and encodes heatmap and keypoints.
func (b *base) finish(studyID string, stack *models.Stack, points []models.LabeledPoint) (Item, error) {
	out, err := b.transform.Apply(augment.Sample{Image: stack, Keypoints: points})
	if err != nil {
		return Item{}, fmt.Errorf("transform study %s: %w", studyID, err)
	}
	w, h := out.Image.Size()
	item := Item{
		Image:     stackToTensor(out.Image),
		Heatmap:   b.encoder.Encode(w, h, out.Keypoints),
		StudyID:   studyID,
		Keypoints: models.FromLabeled(out.Keypoints),
	}
	if dropped := len(points) - item.Keypoints.Count(); dropped > 0 {
		b.log.Debug("keypoints dropped by transform", "study_id", studyID, "dropped", dropped)
	}
	return item, nil
}

func roundHalfEven(v float64) float64 {
	return math.RoundToEven(v)
}
