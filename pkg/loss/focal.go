package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lsdckeypoints/pkg/tensor"
)

// Focal is the multi-class focal loss of Lin et al. (arXiv:1708.02002):
//
//	FL = -alpha_y · (1 - p_y)^gamma · log p_y
//
// Rows whose target equals IgnoreIndex (nil means DefaultIgnoreIndex) are removed before the loss is
// computed; the mean runs over the remaining rows. When nothing remains the
// reduced loss is 0. With Gamma 0 it equals CrossEntropy with the same weights
// under Sum reduction, and under Mean when unweighted.
type Focal struct {
	// Alpha holds one weight per class; nil means all ones
	Alpha []float64

	Gamma       float64
	IgnoreIndex *int
	Reduction   Reduction
}

// NewFocal returns an unweighted mean focal loss ignoring -100.
func NewFocal(gamma float64) Focal {
	return Focal{Gamma: gamma}
}

func (f Focal) String() string {
	return fmt.Sprintf("Focal(alpha=%v, gamma=%g, ignore_index=%d, reduction=%v)",
		f.Alpha, f.Gamma, ignoreIndex(f.IgnoreIndex), f.Reduction)
}

// ElementwiseMatrix returns the loss of every non-ignored row of an N×C logit
// matrix, in row order.
func (f Focal) ElementwiseMatrix(logits mat.Matrix, targets []int) ([]float64, error) {
	n, c := logits.Dims()
	if len(targets) != n {
		return nil, fmt.Errorf("%w: %d targets for %d rows", ErrShapeMismatch, len(targets), n)
	}
	if f.Alpha != nil && len(f.Alpha) != c {
		return nil, fmt.Errorf("%w: %d alpha weights for %d classes", ErrShapeMismatch, len(f.Alpha), c)
	}

	var losses []float64
	logp := make([]float64, c)
	ignore := ignoreIndex(f.IgnoreIndex)
	for i, y := range targets {
		if y == ignore {
			continue
		}
		if y < 0 || y >= c {
			return nil, fmt.Errorf("%w: class %d not in [0,%d)", ErrInvalidTarget, y, c)
		}
		logSoftmax(logp, mat.Row(nil, i, logits))

		alpha := 1.0
		if f.Alpha != nil {
			alpha = f.Alpha[y]
		}
		ce := -alpha * logp[y]
		pt := math.Exp(logp[y])
		losses = append(losses, math.Pow(1-pt, f.Gamma)*ce)
	}
	return losses, nil
}

// ForwardMatrix reduces ElementwiseMatrix.
func (f Focal) ForwardMatrix(logits mat.Matrix, targets []int) (float64, error) {
	losses, err := f.ElementwiseMatrix(logits, targets)
	if err != nil {
		return 0, err
	}
	return reduce(losses, f.Reduction)
}

// Elementwise accepts (N, C) or (N, C, d1..dK) logits with targets flattened
// from (N) or (N, d1..dK) in row-major order.
func (f Focal) Elementwise(logits *tensor.Dense, targets []int) ([]float64, error) {
	rows, err := logits.ClassRows()
	if err != nil {
		return nil, err
	}
	return f.ElementwiseMatrix(rows, targets)
}

// Forward reduces Elementwise.
func (f Focal) Forward(logits *tensor.Dense, targets []int) (float64, error) {
	losses, err := f.Elementwise(logits, targets)
	if err != nil {
		return 0, err
	}
	return reduce(losses, f.Reduction)
}

// SigmoidFocal is the binary focal loss on raw logits, as used by RetinaNet:
//
//	FL = alpha_t · (1 - p_t)^gamma · BCE(x, t)
//
// A negative Alpha disables the class balancing term.
type SigmoidFocal struct {
	Alpha     float64
	Gamma     float64
	Reduction Reduction
}

// NewSigmoidFocal returns the usual alpha 0.25, gamma 2, mean configuration.
func NewSigmoidFocal() SigmoidFocal {
	return SigmoidFocal{Alpha: 0.25, Gamma: 2}
}

// Elementwise returns the loss for every input/target pair.
func (f SigmoidFocal) Elementwise(inputs, targets []float64) ([]float64, error) {
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("%w: %d inputs, %d targets", ErrShapeMismatch, len(inputs), len(targets))
	}
	out := make([]float64, len(inputs))
	for i, x := range inputs {
		t := targets[i]
		p := 1 / (1 + math.Exp(-x))
		// numerically stable binary cross entropy with logits
		ce := math.Max(x, 0) - x*t + math.Log1p(math.Exp(-math.Abs(x)))
		pt := p*t + (1-p)*(1-t)
		l := ce * math.Pow(1-pt, f.Gamma)
		if f.Alpha >= 0 {
			l *= f.Alpha*t + (1-f.Alpha)*(1-t)
		}
		out[i] = l
	}
	return out, nil
}

// Forward reduces Elementwise.
func (f SigmoidFocal) Forward(inputs, targets []float64) (float64, error) {
	losses, err := f.Elementwise(inputs, targets)
	if err != nil {
		return 0, err
	}
	return reduce(losses, f.Reduction)
}
