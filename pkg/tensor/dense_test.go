package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestFromDataShapeMismatch(t *testing.T) {
	_, err := FromData(seq(5), 2, 3)
	require.ErrorIs(t, err, ErrShape)
}

func TestAtSetRowMajor(t *testing.T) {
	d, err := FromData(seq(24), 2, 3, 4)
	require.NoError(t, err)

	assert.Equal(t, 23.0, d.At(1, 2, 3))
	assert.Equal(t, 13.0, d.At(1, 0, 1))

	d.Set(-5, 0, 1, 2)
	assert.Equal(t, -5.0, d.Data()[6])
	assert.Panics(t, func() { d.At(2, 0, 0) })
	assert.Panics(t, func() { d.At(0, 0) })
}

func TestMatrixSharesStorage(t *testing.T) {
	d := New(2, 3, 4)
	m := d.Matrix(1)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	m.Set(2, 3, 9)
	assert.Equal(t, 9.0, d.At(1, 2, 3))
}

func TestTakeDropsAxis(t *testing.T) {
	d, err := FromData(seq(24), 2, 3, 4)
	require.NoError(t, err)

	mid := d.Take(1, 2)
	assert.Equal(t, []int{2, 4}, mid.Shape())
	assert.Equal(t, []float64{8, 9, 10, 11, 20, 21, 22, 23}, mid.Data())

	last := d.Take(2, 0)
	assert.Equal(t, []int{2, 3}, last.Shape())
	assert.Equal(t, []float64{0, 4, 8, 12, 16, 20}, last.Data())

	first := d.Take(0, 1)
	assert.Equal(t, seq(24)[12:], first.Data())
}

func TestClassRowsSpatial(t *testing.T) {
	// (N=2, C=3, d=2)
	d, err := FromData(seq(12), 2, 3, 2)
	require.NoError(t, err)

	rows, err := d.ClassRows()
	require.NoError(t, err)
	r, c := rows.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)

	assert.Equal(t, []float64{0, 2, 4}, rowOf(rows, 0))
	assert.Equal(t, []float64{1, 3, 5}, rowOf(rows, 1))
	assert.Equal(t, []float64{6, 8, 10}, rowOf(rows, 2))
	assert.Equal(t, []float64{7, 9, 11}, rowOf(rows, 3))
}

func TestClassRowsPlainCopies(t *testing.T) {
	d, err := FromData(seq(6), 2, 3)
	require.NoError(t, err)
	rows, err := d.ClassRows()
	require.NoError(t, err)
	rows.Set(0, 0, 100)
	assert.Equal(t, 0.0, d.At(0, 0))

	_, err = New(4).ClassRows()
	assert.ErrorIs(t, err, ErrShape)
}

func TestReshapeAndClone(t *testing.T) {
	d, err := FromData(seq(6), 2, 3)
	require.NoError(t, err)
	r, err := d.Reshape(3, 2)
	require.NoError(t, err)
	r.Set(42, 2, 1)
	assert.Equal(t, 42.0, d.At(1, 2))

	c := d.Clone()
	c.Set(0, 1, 2)
	assert.Equal(t, 42.0, d.At(1, 2))
	assert.Equal(t, 2, d.Rank())
	assert.Equal(t, 3, d.Dim(1))
	assert.Equal(t, 6, d.Len())
}

func rowOf(m interface{ RawRowView(int) []float64 }, i int) []float64 {
	return append([]float64(nil), m.RawRowView(i)...)
}
