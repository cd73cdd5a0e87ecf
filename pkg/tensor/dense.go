// Package tensor provides a small row-major float64 N-d array used for image
// tensors, heatmaps and loss inputs. Two dimensional views are exposed as
// gonum matrices sharing the same backing storage.
package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when data and shape disagree.
var ErrShape = errors.New("tensor: shape mismatch")

// Dense is a row-major N-d array.
type Dense struct {
	shape []int
	data  []float64
}

// New allocates a zeroed tensor. It panics on negative dimensions.
func New(shape ...int) *Dense {
	n := volume(shape)
	return &Dense{shape: append([]int(nil), shape...), data: make([]float64, n)}
}

// FromData wraps data without copying.
func FromData(data []float64, shape ...int) (*Dense, error) {
	if volume(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return &Dense{shape: append([]int(nil), shape...), data: data}, nil
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in %v", shape))
		}
		n *= d
	}
	return n
}

// Shape returns a copy of the dimensions.
func (t *Dense) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dim returns the size of one axis.
func (t *Dense) Dim(axis int) int {
	return t.shape[axis]
}

// Rank returns the number of axes.
func (t *Dense) Rank() int {
	return len(t.shape)
}

// Len returns the number of elements.
func (t *Dense) Len() int {
	return len(t.data)
}

// Data returns the backing slice. Writes are visible through the tensor.
func (t *Dense) Data() []float64 {
	return t.data
}

func (t *Dense) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", v, t.shape[i], i))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Dense) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set writes v at idx.
func (t *Dense) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// Reshape returns a tensor sharing storage with a new shape.
func (t *Dense) Reshape(shape ...int) (*Dense, error) {
	return FromData(t.data, shape...)
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	return &Dense{shape: t.Shape(), data: append([]float64(nil), t.data...)}
}

// Matrix returns channel c of a rank-3 (C,H,W) tensor as an H×W matrix view.
func (t *Dense) Matrix(c int) *mat.Dense {
	if len(t.shape) != 3 {
		panic(fmt.Sprintf("tensor: Matrix needs rank 3, have %v", t.shape))
	}
	h, w := t.shape[1], t.shape[2]
	if h == 0 || w == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(h, w, t.data[c*h*w:(c+1)*h*w])
}

// Take selects index i along axis and drops that axis. The result is a copy.
func (t *Dense) Take(axis, i int) *Dense {
	if axis < 0 || axis >= len(t.shape) {
		panic(fmt.Sprintf("tensor: axis %d out of range for %v", axis, t.shape))
	}
	dim := t.shape[axis]
	if i < 0 || i >= dim {
		panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", i, dim, axis))
	}
	outer := volume(t.shape[:axis])
	inner := volume(t.shape[axis+1:])

	shape := make([]int, 0, len(t.shape)-1)
	shape = append(shape, t.shape[:axis]...)
	shape = append(shape, t.shape[axis+1:]...)
	out := New(shape...)
	for o := 0; o < outer; o++ {
		copy(out.data[o*inner:(o+1)*inner], t.data[(o*dim+i)*inner:(o*dim+i+1)*inner])
	}
	return out
}

// ClassRows flattens an (N, C, d1..dK) tensor into an (N·d1···dK)×C matrix so that
// every spatial position becomes one row of class scores. Row r = n·D + s, where
// s is the row-major offset inside d1..dK, matching a flattened (N, d1..dK) target.
func (t *Dense) ClassRows() (*mat.Dense, error) {
	if len(t.shape) < 2 {
		return nil, fmt.Errorf("%w: need at least (N, C), have %v", ErrShape, t.shape)
	}
	n, c := t.shape[0], t.shape[1]
	spatial := volume(t.shape[2:])
	rows := n * spatial
	if rows == 0 || c == 0 {
		return nil, fmt.Errorf("%w: empty class matrix from %v", ErrShape, t.shape)
	}
	if spatial == 1 {
		return mat.NewDense(n, c, append([]float64(nil), t.data...)), nil
	}
	out := mat.NewDense(rows, c, nil)
	for b := 0; b < n; b++ {
		for k := 0; k < c; k++ {
			base := (b*c + k) * spatial
			for s := 0; s < spatial; s++ {
				out.Set(b*spatial+s, k, t.data[base+s])
			}
		}
	}
	return out, nil
}
