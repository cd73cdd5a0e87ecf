package models

import (
	"image"
)

// SliceFile is one rendered slice of a series on disk.
type SliceFile struct {
	// Path is the absolute or root-relative path of the raster file
	Path string

	// Instance is the instance number parsed from the file stem, -1 when the
	// stem carries no instance token
	Instance int
}

// Series is the ordered list of slices found in one series directory.
type Series struct {
	// Dir is the directory the slices were listed from
	Dir string

	// Slices are sorted by file name, which is assumed to follow anatomical order
	Slices []SliceFile
}

// Len returns the number of slices in the series.
func (s *Series) Len() int {
	return len(s.Slices)
}

// IndexOfInstance returns the position of the slice carrying the given
// instance number, or -1.
func (s *Series) IndexOfInstance(instance int) int {
	for i, sl := range s.Slices {
		if sl.Instance == instance {
			return i
		}
	}
	return -1
}

// Stack is a multi-channel 8-bit image. Every plane shares the same bounds.
type Stack struct {
	Planes []*image.Gray
}

// NewStack allocates a zeroed stack of the given channel count and size.
func NewStack(channels, width, height int) *Stack {
	planes := make([]*image.Gray, channels)
	for i := range planes {
		planes[i] = image.NewGray(image.Rect(0, 0, width, height))
	}
	return &Stack{Planes: planes}
}

// Channels returns the number of planes.
func (s *Stack) Channels() int {
	return len(s.Planes)
}

// Size returns width and height of the stack, zero for an empty stack.
func (s *Stack) Size() (width, height int) {
	if len(s.Planes) == 0 {
		return 0, 0
	}
	b := s.Planes[0].Bounds()
	return b.Dx(), b.Dy()
}
