package loss

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropy is softmax cross entropy over the columns of an N×C logit
// matrix, with optional per-class weights.
//
// With class-index targets, rows whose target equals IgnoreIndex (nil means
// DefaultIgnoreIndex) are skipped
// and the weighted mean divides by the summed weight of the kept targets.
// With probability (one-hot or soft) targets, the mean divides by N.
type CrossEntropy struct {
	// Weight holds one weight per class; nil means all ones
	Weight []float64

	IgnoreIndex    *int
	LabelSmoothing float64
	Reduction      Reduction
}

// NewCrossEntropy returns an unweighted mean cross entropy ignoring -100.
func NewCrossEntropy() CrossEntropy {
	return CrossEntropy{}
}

func (ce CrossEntropy) weight(c int) float64 {
	if ce.Weight == nil {
		return 1
	}
	return ce.Weight[c]
}

func (ce CrossEntropy) checkWeight(classes int) error {
	if ce.Weight != nil && len(ce.Weight) != classes {
		return fmt.Errorf("%w: %d class weights for %d classes", ErrShapeMismatch, len(ce.Weight), classes)
	}
	return nil
}

// ElementwiseIndex returns the per-row loss and the weight each row carries in
// a mean. Ignored rows have loss 0 and weight 0.
func (ce CrossEntropy) ElementwiseIndex(logits mat.Matrix, targets []int) (losses, weights []float64, err error) {
	n, c := logits.Dims()
	if len(targets) != n {
		return nil, nil, fmt.Errorf("%w: %d targets for %d rows", ErrShapeMismatch, len(targets), n)
	}
	if err := ce.checkWeight(c); err != nil {
		return nil, nil, err
	}

	losses = make([]float64, n)
	weights = make([]float64, n)
	logp := make([]float64, c)
	ignore := ignoreIndex(ce.IgnoreIndex)
	for i, y := range targets {
		if y == ignore {
			continue
		}
		if y < 0 || y >= c {
			return nil, nil, fmt.Errorf("%w: class %d not in [0,%d)", ErrInvalidTarget, y, c)
		}
		logSoftmax(logp, mat.Row(nil, i, logits))

		wy := ce.weight(y)
		l := -wy * logp[y]
		if ce.LabelSmoothing > 0 {
			smooth := 0.0
			for k, lp := range logp {
				smooth -= ce.weight(k) * lp
			}
			l = (1-ce.LabelSmoothing)*l + ce.LabelSmoothing*smooth/float64(c)
		}
		losses[i] = l
		weights[i] = wy
	}
	return losses, weights, nil
}

// ForwardIndex reduces ElementwiseIndex. When every row is ignored the mean is 0.
func (ce CrossEntropy) ForwardIndex(logits mat.Matrix, targets []int) (float64, error) {
	losses, weights, err := ce.ElementwiseIndex(logits, targets)
	if err != nil {
		return 0, err
	}
	if ce.Reduction != ReductionMean {
		return reduce(losses, ce.Reduction)
	}
	total := floats.Sum(weights)
	if total == 0 {
		return 0, nil
	}
	return floats.Sum(losses) / total, nil
}

// ElementwiseProb returns -Σ_c w_c·y_c·log p_c for every row.
func (ce CrossEntropy) ElementwiseProb(logits, targets mat.Matrix) ([]float64, error) {
	n, c := logits.Dims()
	tn, tc := targets.Dims()
	if n != tn || c != tc {
		return nil, fmt.Errorf("%w: logits %dx%d, targets %dx%d", ErrShapeMismatch, n, c, tn, tc)
	}
	if err := ce.checkWeight(c); err != nil {
		return nil, err
	}

	losses := make([]float64, n)
	logp := make([]float64, c)
	for i := 0; i < n; i++ {
		logSoftmax(logp, mat.Row(nil, i, logits))
		l := 0.0
		for k := 0; k < c; k++ {
			y := targets.At(i, k)
			if ce.LabelSmoothing > 0 {
				y = y*(1-ce.LabelSmoothing) + ce.LabelSmoothing/float64(c)
			}
			l -= ce.weight(k) * y * logp[k]
		}
		losses[i] = l
	}
	return losses, nil
}

// ForwardProb reduces ElementwiseProb.
func (ce CrossEntropy) ForwardProb(logits, targets mat.Matrix) (float64, error) {
	losses, err := ce.ElementwiseProb(logits, targets)
	if err != nil {
		return 0, err
	}
	return reduce(losses, ce.Reduction)
}

// logSoftmax writes log(softmax(row)) into dst.
func logSoftmax(dst, row []float64) {
	lse := floats.LogSumExp(row)
	for i, v := range row {
		dst[i] = v - lse
	}
}
