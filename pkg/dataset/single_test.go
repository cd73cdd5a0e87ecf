package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/annotation"
	"lsdckeypoints/pkg/augment"
)

func singleFixture(t *testing.T, transform augment.Transform) *SingleSlice {
	t.Helper()
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "4003253", "slice.png"), 40, 40, func(x, y int) uint8 {
		return uint8(x + y)
	})

	var rec annotation.Record
	rec.StudyID = "4003253"
	rec.ImagePath = "4003253/slice.png"
	rec.Absolute[models.L3L4] = models.Point(19.6, 20.4)

	opts := DefaultOptions()
	opts.ImageRoot = root
	opts.Transform = transform
	ds, err := NewSingleSlice(annotation.NewTable([]annotation.Record{rec}), opts)
	require.NoError(t, err)
	return ds
}

func TestSingleSliceHeatmapPeak(t *testing.T) {
	ds := singleFixture(t, nil)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, 1, ds.Radius())

	item, err := ds.GetItem(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "4003253", item.StudyID)
	assert.Equal(t, []int{1, 40, 40}, item.Image.Shape())
	assert.Equal(t, 7.0, item.Image.At(0, 4, 3))
	require.Equal(t, []int{models.NumLevels, 10, 10}, item.Heatmap.Shape())

	for c := 0; c < models.NumLevels; c++ {
		m := item.Heatmap.Matrix(c)
		if c != int(models.L3L4) {
			assert.Zero(t, mat.Max(m), "level %d must stay empty", c)
			continue
		}
		assert.Equal(t, 1.0, m.At(5, 5))
		assert.Equal(t, 1.0, mat.Max(m))
		assert.Less(t, m.At(5, 6), 1.0)
	}

	arr := item.KeypointArray()
	assert.Equal(t, [2]float64{20, 20}, arr[models.L3L4])
	assert.Equal(t, [2]float64{-1, -1}, arr[models.L1L2])
}

func TestSingleSliceTransformDropsKeypoint(t *testing.T) {
	ds := singleFixture(t, augment.Affine{Scale: 1, TranslateX: 30})

	item, err := ds.GetItem(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, item.Keypoints[models.L3L4].Present)
	assert.Equal(t, [2]float64{-1, -1}, item.KeypointArray()[models.L3L4])
	assert.Zero(t, mat.Max(item.Heatmap.Matrix(int(models.L3L4))))
}

func TestSingleSliceResizeTransform(t *testing.T) {
	ds := singleFixture(t, augment.Resize{Width: 80, Height: 80})

	item, err := ds.GetItem(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 80, 80}, item.Image.Shape())
	assert.Equal(t, []int{models.NumLevels, 20, 20}, item.Heatmap.Shape())
	assert.Equal(t, models.Point(40, 40), item.Keypoints[models.L3L4])
	assert.Equal(t, 1.0, item.Heatmap.At(int(models.L3L4), 10, 10))
}

func TestSingleSliceErrors(t *testing.T) {
	ds := singleFixture(t, nil)

	_, err := ds.GetItem(context.Background(), 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = ds.GetItem(context.Background(), -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ds.GetItem(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	missing := annotation.NewTable([]annotation.Record{{StudyID: "1", ImagePath: "nope.png"}})
	opts := DefaultOptions()
	opts.ImageRoot = t.TempDir()
	broken, err := NewSingleSlice(missing, opts)
	require.NoError(t, err)
	_, err = broken.GetItem(context.Background(), 0)
	assert.ErrorContains(t, err, "study 1")

	opts.Stride = 0
	_, err = NewSingleSlice(missing, opts)
	assert.Error(t, err)

	_, err = NewSingleSlice(nil, DefaultOptions())
	assert.Error(t, err)
}
