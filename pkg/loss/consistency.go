package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultConsistencyAlpha rewards aligned views: higher similarity, lower loss.
const DefaultConsistencyAlpha = -0.5

const similarityEps = 1e-6

// Similarity is the cosine similarity of a and b with a small epsilon in the
// denominator so zero vectors give 0.
func Similarity(a, b []float64) float64 {
	return floats.Dot(a, b) / (math.Sqrt(floats.Dot(a, a))*math.Sqrt(floats.Dot(b, b)) + similarityEps)
}

// Consistency aligns the embeddings of two views of the same study with their
// projections: loss = Alpha · (cos(x1, x1p) + cos(x2, x2p)) per row.
type Consistency struct {
	Alpha     float64
	Reduction Reduction
}

// NewConsistency returns the mean consistency loss with alpha -0.5.
func NewConsistency() Consistency {
	return Consistency{Alpha: DefaultConsistencyAlpha}
}

// Elementwise returns one value per row. All four matrices must be N×D.
func (c Consistency) Elementwise(x1, x1Proj, x2, x2Proj mat.Matrix) ([]float64, error) {
	n, d := x1.Dims()
	for _, m := range []mat.Matrix{x1Proj, x2, x2Proj} {
		if r, k := m.Dims(); r != n || k != d {
			return nil, fmt.Errorf("%w: expected %dx%d, got %dx%d", ErrShapeMismatch, n, d, r, k)
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s1 := Similarity(mat.Row(nil, i, x1), mat.Row(nil, i, x1Proj))
		s2 := Similarity(mat.Row(nil, i, x2), mat.Row(nil, i, x2Proj))
		out[i] = c.Alpha * (s1 + s2)
	}
	return out, nil
}

// Forward reduces Elementwise.
func (c Consistency) Forward(x1, x1Proj, x2, x2Proj mat.Matrix) (float64, error) {
	losses, err := c.Elementwise(x1, x1Proj, x2, x2Proj)
	if err != nil {
		return 0, err
	}
	return reduce(losses, c.Reduction)
}
