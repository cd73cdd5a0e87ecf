package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectNeighbors(t *testing.T) {
	tests := []struct {
		name            string
		length, n, base int
		want            []int
	}{
		{"clamp at start", 5, 3, 0, []int{0, 0, 1}},
		{"clamp at end", 5, 3, 4, []int{3, 4, 4}},
		{"interior", 10, 5, 5, []int{3, 4, 5, 6, 7}},
		{"single slice series", 1, 3, 0, []int{0, 0, 0}},
		{"one slice", 7, 1, 3, []int{3}},
		{"window wider than series", 3, 7, 1, []int{0, 0, 0, 1, 2, 2, 2}},
		{"empty", 0, 3, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectNeighbors(tt.length, tt.n, tt.base))
		})
	}
}

func TestListSeries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"IMG_10.png", "IMG_2.png", "IMG_1.png", "notes.txt", "cover.png"} {
		writeGray(t, filepath.Join(dir, name), 2, 2, 0)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "IMG_3.png"), 0755))

	series, err := ListSeries(dir)
	require.NoError(t, err)
	require.Equal(t, 4, series.Len())

	var names []string
	var instances []int
	for _, s := range series.Slices {
		names = append(names, filepath.Base(s.Path))
		instances = append(instances, s.Instance)
	}
	assert.Equal(t, []string{"IMG_1.png", "IMG_10.png", "IMG_2.png", "cover.png"}, names)
	assert.Equal(t, []int{1, 10, 2, -1}, instances)
	assert.Equal(t, 2, series.IndexOfInstance(2))
}

func TestListSeriesErrors(t *testing.T) {
	_, err := ListSeries(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = ListSeries(t.TempDir())
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestInstanceNumber(t *testing.T) {
	assert.Equal(t, 7, instanceNumber("IMG_0007.png"))
	assert.Equal(t, 12, instanceNumber("/a/b/series_12_extra.tif"))
	assert.Equal(t, -1, instanceNumber("plain.png"))
	assert.Equal(t, -1, instanceNumber("IMG_x.png"))
}
