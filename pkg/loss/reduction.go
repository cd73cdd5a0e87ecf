// Package loss evaluates the classification and representation losses used to
// train and validate the LSDC classifier: weighted cross entropy, multi-class
// and binary focal loss, a cosine consistency regulariser and the composite
// per-condition, per-level RSNA loss.
//
// All losses are forward-only and operate on gonum matrices or tensor.Dense
// values. They keep no state between calls and are safe for concurrent use.
package loss

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrShapeMismatch is returned when inputs disagree in shape.
	ErrShapeMismatch = errors.New("loss: shape mismatch")

	// ErrNoReduction is returned by a scalar Forward configured with ReductionNone.
	ErrNoReduction = errors.New("loss: reduction none has no scalar result")

	// ErrUnsupportedLoss is returned for an unknown classification loss kind.
	ErrUnsupportedLoss = errors.New("loss: unsupported loss")

	// ErrInvalidTarget is returned for class indices outside [0, C).
	ErrInvalidTarget = errors.New("loss: invalid target")
)

// DefaultIgnoreIndex marks targets excluded from a loss.
const DefaultIgnoreIndex = -100

// Ignore returns a pointer to index for the IgnoreIndex fields. A nil
// IgnoreIndex means DefaultIgnoreIndex, so class 0 is never dropped by a zero
// value.
func Ignore(index int) *int {
	return &index
}

func ignoreIndex(p *int) int {
	if p == nil {
		return DefaultIgnoreIndex
	}
	return *p
}

// Reduction selects how per-element losses are combined.
type Reduction int

const (
	ReductionMean Reduction = iota
	ReductionSum
	ReductionNone
)

func (r Reduction) String() string {
	switch r {
	case ReductionMean:
		return "mean"
	case ReductionSum:
		return "sum"
	case ReductionNone:
		return "none"
	}
	return fmt.Sprintf("Reduction(%d)", int(r))
}

// ParseReduction maps "mean", "sum" or "none" to a Reduction. Empty means mean.
func ParseReduction(s string) (Reduction, error) {
	switch s {
	case "", "mean":
		return ReductionMean, nil
	case "sum":
		return ReductionSum, nil
	case "none":
		return ReductionNone, nil
	}
	return 0, fmt.Errorf("reduction must be one of mean, sum, none: got %q", s)
}

// reduce combines values. The mean of no values is 0.
func reduce(values []float64, r Reduction) (float64, error) {
	switch r {
	case ReductionMean:
		if len(values) == 0 {
			return 0, nil
		}
		return stat.Mean(values, nil), nil
	case ReductionSum:
		return floats.Sum(values), nil
	case ReductionNone:
		return 0, ErrNoReduction
	}
	return 0, fmt.Errorf("unknown reduction %v", r)
}
