// Package annotation reads the per-example annotation table: one row per
// training image (or series), with per-level keypoint columns.
//
// Recognised columns:
//
//	study_id                      required
//	series_id                     optional
//	png_path                      image path relative to the image root (single-slice)
//	image_dir                     slice directory relative to the image root (multi-slice)
//	instance_number               annotated slice instance (multi-slice)
//	<level>_x, <level>_y          absolute keypoint in pixels, e.g. "L4/L5_x"
//	<level>_nx, <level>_ny        keypoint normalised to [0,1] by image width/height
//
// Empty, "nan" and "NaN" cells mark an absent value.
package annotation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"lsdckeypoints/internal/models"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("annotation: missing column")

// Record is one annotated example.
type Record struct {
	StudyID   string
	SeriesID  string
	ImagePath string
	ImageDir  string

	// InstanceNumber is valid only when HasInstance is true
	InstanceNumber int
	HasInstance    bool

	// Absolute keypoints in source image pixels
	Absolute models.Keypoints
	// Normalized keypoints in [0,1] of the source image size
	Normalized models.Keypoints
}

// Table is an immutable, read-only list of records. It is safe to share
// between goroutines.
type Table struct {
	records []Record
}

// NewTable wraps records. The slice is copied.
func NewTable(records []Record) *Table {
	return &Table{records: append([]Record(nil), records...)}
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Row returns record i.
func (t *Table) Row(i int) (Record, error) {
	if i < 0 || i >= len(t.records) {
		return Record{}, fmt.Errorf("annotation: row %d out of range [0,%d)", i, len(t.records))
	}
	return t.records[i], nil
}

// Load reads a CSV annotation file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening annotation file: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV annotations from r.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	if _, ok := cols["study_id"]; !ok {
		return nil, fmt.Errorf("%w: study_id", ErrMissingColumn)
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(cols, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return &Table{records: records}, nil
}

func parseRow(cols map[string]int, row []string) (Record, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := Record{
		StudyID:   normalizeID(get("study_id")),
		SeriesID:  normalizeID(get("series_id")),
		ImagePath: get("png_path"),
		ImageDir:  get("image_dir"),
	}
	if rec.StudyID == "" {
		return rec, errors.New("empty study_id")
	}

	if v, ok, err := parseFloat(get("instance_number")); err != nil {
		return rec, fmt.Errorf("instance_number: %w", err)
	} else if ok {
		rec.InstanceNumber = int(v)
		rec.HasInstance = true
	}

	for _, level := range models.Levels {
		name := level.String()
		abs, err := parsePoint(get(name+"_x"), get(name+"_y"))
		if err != nil {
			return rec, fmt.Errorf("%s: %w", name, err)
		}
		rec.Absolute[level] = abs

		norm, err := parsePoint(get(name+"_nx"), get(name+"_ny"))
		if err != nil {
			return rec, fmt.Errorf("%s normalized: %w", name, err)
		}
		rec.Normalized[level] = norm
	}
	return rec, nil
}

// normalizeID turns "4003253.0" style exports back into integer ids.
func normalizeID(s string) string {
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.ParseInt(strings.TrimSuffix(s, ".0"), 10, 64); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

func parsePoint(xs, ys string) (models.Keypoint, error) {
	x, okx, err := parseFloat(xs)
	if err != nil {
		return models.Keypoint{}, err
	}
	y, oky, err := parseFloat(ys)
	if err != nil {
		return models.Keypoint{}, err
	}
	if !okx || !oky {
		return models.Keypoint{}, nil
	}
	return models.Point(x, y), nil
}

func parseFloat(s string) (float64, bool, error) {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}
