package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsdckeypoints/pkg/tensor"
)

func filled(v float64, shape ...int) *tensor.Dense {
	t := tensor.New(shape...)
	for i := range t.Data() {
		t.Data()[i] = v
	}
	return t
}

func oneHot(class int, shape ...int) *tensor.Dense {
	t := tensor.New(shape...)
	k := shape[len(shape)-1]
	for i := class; i < t.Len(); i += k {
		t.Data()[i] = 1
	}
	return t
}

func TestNewRSNAValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = "DiceLoss"
	_, err := NewRSNA(cfg)
	assert.ErrorIs(t, err, ErrUnsupportedLoss)

	cfg = DefaultConfig()
	cfg.ConditionWeight = []float64{1, 2}
	_, err = NewRSNA(cfg)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	cfg = DefaultConfig()
	cfg.Levels = nil
	_, err = NewRSNA(cfg)
	assert.Error(t, err)

	r, err := NewRSNA(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, r.Config().ConditionWeight)
}

func TestRSNAIndexTargets(t *testing.T) {
	r, err := NewRSNA(DefaultConfig())
	require.NoError(t, err)

	logits := tensor.New(2, 5, 5, 3)
	targets := filled(2, 2, 5, 5)
	out, err := r.Forward(logits, targets, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, ln3, out.Overall, tol)
	assert.Zero(t, out.Level)
	assert.False(t, out.LevelSkipped)
	assert.InDelta(t, ln3, out.Total, tol)
	assert.Equal(t, out.Total, out.Map()["loss"])
	assert.Equal(t, out.Overall, out.Map()["overall_loss"])
}

func TestRSNAProbabilityTargets(t *testing.T) {
	r, err := NewRSNA(DefaultConfig())
	require.NoError(t, err)

	logits := tensor.New(2, 5, 5, 3)
	// class 2 carries weight 4 and the probability mean divides by N
	out, err := r.Forward(logits, oneHot(2, 2, 5, 5, 3), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4*ln3, out.Overall, tol)
}

func TestRSNAConditionWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConditionWeight = []float64{2, 1, 1, 1, 1}
	r, err := NewRSNA(cfg)
	require.NoError(t, err)

	out, err := r.Forward(tensor.New(1, 5, 5, 3), tensor.New(1, 5, 5), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.2*ln3, out.Overall, tol)
}

func TestRSNAOnlyLogitSlotMatters(t *testing.T) {
	r, err := NewRSNA(DefaultConfig())
	require.NoError(t, err)

	logits := tensor.New(1, 5, 5, 3)
	// make spinal canal stenosis at L4/L5 confidently correct
	logits.Set(20, 0, 0, 3, 0)
	out, err := r.Forward(logits, tensor.New(1, 5, 5), nil, nil)
	require.NoError(t, err)

	confident := -(20 - math.Log(math.Exp(20)+2))
	assert.InDelta(t, (24*ln3+confident)/25, out.Overall, tol)
}

func TestRSNALevelLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LevelLossWeight = 0.5
	r, err := NewRSNA(cfg)
	require.NoError(t, err)

	logits := tensor.New(2, 5, 5, 3)
	targets := tensor.New(2, 5, 5)
	levelLogits := tensor.New(2, 5, 3)
	levelTargets := filled(1, 2, 5)
	levelTargets.Set(DefaultIgnoreIndex, 0, 4)

	out, err := r.Forward(logits, targets, levelLogits, levelTargets)
	require.NoError(t, err)
	assert.InDelta(t, ln3, out.Level, tol)
	assert.False(t, out.LevelSkipped)
	assert.InDelta(t, 1.5*ln3, out.Total, tol)

	_, err = r.Forward(logits, targets, nil, nil)
	assert.ErrorIs(t, err, ErrMissingLevelInputs)

	_, err = r.Forward(logits, targets, levelLogits, tensor.New(2, 4))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRSNALevelLossAllIgnoredIsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LevelLossWeight = 1
	r, err := NewRSNA(cfg)
	require.NoError(t, err)

	out, err := r.Forward(tensor.New(1, 5, 5, 3), tensor.New(1, 5, 5),
		tensor.New(1, 5, 3), filled(DefaultIgnoreIndex, 1, 5))
	require.NoError(t, err)
	assert.True(t, out.LevelSkipped)
	assert.Zero(t, out.Level)
	assert.False(t, math.IsNaN(out.Total))
	assert.InDelta(t, ln3, out.Total, tol)
}

func TestRSNAFocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindFocal
	cfg.Gamma = 0
	r, err := NewRSNA(cfg)
	require.NoError(t, err)

	logits := tensor.New(1, 5, 5, 3)
	out, err := r.Forward(logits, oneHot(1, 1, 5, 5, 3), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, ln3, out.Overall, tol)

	// rows without a positive class are ignored
	out, err = r.Forward(logits, tensor.New(1, 5, 5, 3), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Overall)
}

func TestRSNAShapeErrors(t *testing.T) {
	r, err := NewRSNA(DefaultConfig())
	require.NoError(t, err)

	_, err = r.Forward(tensor.New(1, 4, 5, 3), tensor.New(1, 4, 5), nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = r.Forward(tensor.New(1, 5, 5, 3), tensor.New(1, 5, 4), nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = r.Forward(tensor.New(1, 5, 5, 3), nil, nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = r.Forward(tensor.New(1, 5, 5, 3), filled(3, 1, 5, 5), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRSNAConfigLiteralDefaults(t *testing.T) {
	// one condition, one level, a wrong confident prediction for class 0
	logits, err := tensor.FromData([]float64{0, 5, 0}, 1, 1, 1, 3)
	require.NoError(t, err)
	targets := tensor.New(1, 1, 1)
	want := math.Log(math.Exp(5) + 2)

	for _, kind := range []string{KindCrossEntropy, KindFocal} {
		t.Run(kind, func(t *testing.T) {
			r, err := NewRSNA(Config{Kind: kind, Conditions: []string{"c"}, Levels: []string{"l"}})
			require.NoError(t, err)

			got, err := r.Forward(logits, targets, nil, nil)
			require.NoError(t, err)
			assert.InDelta(t, want, got.Overall, tol)
			assert.InDelta(t, want, got.Total, tol)

			probs := oneHot(0, 1, 1, 1, 3)
			got, err = r.Forward(logits, probs, nil, nil)
			require.NoError(t, err)
			assert.InDelta(t, want, got.Overall, tol)
		})
	}

	r, err := NewRSNA(Config{
		Kind:              KindCrossEntropy,
		Conditions:        []string{"c"},
		Levels:            []string{"l"},
		OverallLossWeight: Weight(0),
	})
	require.NoError(t, err)
	got, err := r.Forward(logits, targets, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, want, got.Overall, tol)
	assert.Zero(t, got.Total)
}
