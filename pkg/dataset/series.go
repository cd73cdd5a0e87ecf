package dataset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lsdckeypoints/internal/models"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// ListSeries reads a series directory. Slice files are sorted by file name,
// which the rendering step keeps in anatomical order. The instance number is
// the integer token following the first underscore of the file stem
// ("IMG_0007.png" -> 7).
func ListSeries(dir string) (*models.Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading series directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySeries, dir)
	}
	sort.Strings(names)

	series := &models.Series{Dir: dir, Slices: make([]models.SliceFile, len(names))}
	for i, name := range names {
		series.Slices[i] = models.SliceFile{
			Path:     filepath.Join(dir, name),
			Instance: instanceNumber(name),
		}
	}
	return series, nil
}

// instanceNumber extracts the instance token from a slice file name, or -1.
func instanceNumber(filename string) int {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1
	}
	return n
}

// SelectNeighbors picks n indices evenly spaced over [base-n/2, base+n/2],
// rounded to the nearest integer and clamped into [0, length-1]. Near the ends
// of the series the boundary slice repeats instead of going out of range.
func SelectNeighbors(length, n, base int) []int {
	if length <= 0 || n <= 0 {
		return nil
	}
	offset := n / 2
	start := float64(base - offset)
	stop := float64(base + offset)

	indices := make([]int, n)
	for i := range indices {
		v := start
		if n > 1 {
			v = start + float64(i)*(stop-start)/float64(n-1)
		}
		idx := int(math.Round(v))
		indices[i] = min(max(idx, 0), length-1)
	}
	return indices
}

// baseIndex resolves the reference slice. The annotated instance must exist in
// the series even when the centre slice is used as base.
func baseIndex(series *models.Series, rec annotationRef, useCenter bool) (int, error) {
	if !rec.hasInstance {
		return -1, fmt.Errorf("%w: study %s has no instance_number", ErrBaseInstanceNotFound, rec.studyID)
	}
	idx := series.IndexOfInstance(rec.instance)
	if idx < 0 {
		return -1, fmt.Errorf("%w: study %s, instance %d in %s",
			ErrBaseInstanceNotFound, rec.studyID, rec.instance, series.Dir)
	}
	if useCenter {
		return series.Len() / 2, nil
	}
	return idx, nil
}

type annotationRef struct {
	studyID     string
	instance    int
	hasInstance bool
}
