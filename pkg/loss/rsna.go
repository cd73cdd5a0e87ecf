package loss

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"lsdckeypoints/pkg/tensor"
)

// Classification loss kinds accepted by the composite loss.
const (
	KindCrossEntropy = "CrossEntropyLoss"
	KindFocal        = "FocalLoss"
)

// DefaultConditions are the five graded conditions, in logit order.
var DefaultConditions = []string{
	"spinal_canal_stenosis",
	"left_neural_foraminal_narrowing",
	"right_neural_foraminal_narrowing",
	"left_subarticular_stenosis",
	"right_subarticular_stenosis",
}

// DefaultLevels are the five disc levels, in logit order.
var DefaultLevels = []string{"L1/L2", "L2/L3", "L3/L4", "L4/L5", "L5/S1"}

// ErrMissingLevelInputs is returned when the level loss is enabled but no level
// logits or targets were passed.
var ErrMissingLevelInputs = errors.New("loss: level loss enabled without level logits/targets")

// Config selects and parameterises the composite loss.
type Config struct {
	// Kind is KindCrossEntropy or KindFocal
	Kind string `yaml:"kind"`

	// Weight are class weights for cross entropy
	Weight []float64 `yaml:"weight,omitempty"`
	// Alpha are class weights for focal loss
	Alpha []float64 `yaml:"alpha,omitempty"`
	// Gamma is the focal modulating exponent
	Gamma float64 `yaml:"gamma"`

	// IgnoreIndex marks unlabeled targets; nil means DefaultIgnoreIndex
	IgnoreIndex    *int    `yaml:"ignoreIndex"`
	LabelSmoothing float64 `yaml:"labelSmoothing"`

	Conditions      []string  `yaml:"conditions"`
	Levels          []string  `yaml:"levels"`
	ConditionWeight []float64 `yaml:"conditionWeight,omitempty"`

	// OverallLossWeight scales the condition loss in Total; nil means 1
	OverallLossWeight *float64 `yaml:"overallLossWeight"`
	LevelLossWeight   float64  `yaml:"levelLossWeight"`
}

func (c Config) overallWeight() float64 {
	if c.OverallLossWeight == nil {
		return 1
	}
	return *c.OverallLossWeight
}

// Weight returns a pointer to w for Config.OverallLossWeight.
func Weight(w float64) *float64 {
	return &w
}

// DefaultConfig is cross entropy with class weights 1, 2, 4 over every
// condition and level, without level loss.
func DefaultConfig() Config {
	return Config{
		Kind:              KindCrossEntropy,
		Weight:            []float64{1, 2, 4},
		IgnoreIndex:       Ignore(DefaultIgnoreIndex),
		Conditions:        append([]string(nil), DefaultConditions...),
		Levels:            append([]string(nil), DefaultLevels...),
		OverallLossWeight: Weight(1),
	}
}

// Losses is the composite loss result.
type Losses struct {
	Overall float64
	Level   float64
	Total   float64

	// LevelSkipped is true when the level loss was enabled but every level of
	// the batch carried only ignore targets, so Level is 0
	LevelSkipped bool
}

// Map returns the result keyed as overall_loss, level_loss and loss.
func (l Losses) Map() map[string]float64 {
	return map[string]float64{
		"overall_loss": l.Overall,
		"level_loss":   l.Level,
		"loss":         l.Total,
	}
}

// classifier is the per (condition, level) classification loss.
type classifier interface {
	index(logits mat.Matrix, targets []int) (float64, error)
	prob(logits, targets mat.Matrix) (float64, error)
}

type ceClassifier struct{ CrossEntropy }

func (c ceClassifier) index(logits mat.Matrix, targets []int) (float64, error) {
	return c.ForwardIndex(logits, targets)
}

func (c ceClassifier) prob(logits, targets mat.Matrix) (float64, error) {
	return c.ForwardProb(logits, targets)
}

type focalClassifier struct{ Focal }

func (c focalClassifier) index(logits mat.Matrix, targets []int) (float64, error) {
	return c.ForwardMatrix(logits, targets)
}

// prob converts one-hot targets to class indices; all-zero rows are ignored.
func (c focalClassifier) prob(logits, targets mat.Matrix) (float64, error) {
	n, k := targets.Dims()
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		row := mat.Row(nil, i, targets)
		if floats.Max(row) <= 0 || k == 0 {
			idx[i] = ignoreIndex(c.IgnoreIndex)
			continue
		}
		idx[i] = floats.MaxIdx(row)
	}
	return c.ForwardMatrix(logits, idx)
}

// RSNA is the composite loss over conditions × levels plus an optional
// auxiliary level loss.
type RSNA struct {
	cfg       Config
	cls       classifier
	levelLoss CrossEntropy
}

// NewRSNA validates cfg. An unknown Kind fails here, not at first use.
func NewRSNA(cfg Config) (*RSNA, error) {
	if len(cfg.Conditions) == 0 || len(cfg.Levels) == 0 {
		return nil, errors.New("loss: conditions and levels must not be empty")
	}
	if cfg.ConditionWeight == nil {
		cfg.ConditionWeight = make([]float64, len(cfg.Conditions))
		for i := range cfg.ConditionWeight {
			cfg.ConditionWeight[i] = 1
		}
	}
	if len(cfg.ConditionWeight) != len(cfg.Conditions) {
		return nil, fmt.Errorf("%w: %d condition weights for %d conditions",
			ErrShapeMismatch, len(cfg.ConditionWeight), len(cfg.Conditions))
	}

	r := &RSNA{cfg: cfg, levelLoss: NewCrossEntropy()}
	switch cfg.Kind {
	case KindCrossEntropy:
		r.cls = ceClassifier{CrossEntropy{
			Weight:         cfg.Weight,
			IgnoreIndex:    cfg.IgnoreIndex,
			LabelSmoothing: cfg.LabelSmoothing,
		}}
	case KindFocal:
		r.cls = focalClassifier{Focal{
			Alpha:       cfg.Alpha,
			Gamma:       cfg.Gamma,
			IgnoreIndex: cfg.IgnoreIndex,
		}}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLoss, cfg.Kind)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *RSNA) Config() Config {
	return r.cfg
}

// Forward evaluates the composite loss.
//
// logits is (N, conditions, levels, classes). targets is either the same shape
// holding one-hot or soft labels, or (N, conditions, levels) holding class
// indices. levelLogits (N, levels, K) and levelTargets (N, levels) are only read
// when LevelLossWeight > 0; levelTargets uses -100 for rows without a label.
//
// When every level target of the batch is -100 the level loss is 0 and
// Losses.LevelSkipped is set.
func (r *RSNA) Forward(logits, targets, levelLogits, levelTargets *tensor.Dense) (Losses, error) {
	nc, nl := len(r.cfg.Conditions), len(r.cfg.Levels)
	if logits == nil || logits.Rank() != 4 || logits.Dim(1) != nc || logits.Dim(2) != nl {
		return Losses{}, fmt.Errorf("%w: logits must be (N, %d, %d, C)", ErrShapeMismatch, nc, nl)
	}
	probTargets, err := targetKind(logits, targets)
	if err != nil {
		return Losses{}, err
	}

	partials := make([]float64, 0, nc*nl)
	for c := 0; c < nc; c++ {
		condLogits := logits.Take(1, c)
		condTargets := targets.Take(1, c)
		for l := 0; l < nl; l++ {
			logit, err := condLogits.Take(1, l).ClassRows()
			if err != nil {
				return Losses{}, err
			}
			target := condTargets.Take(1, l)

			var partial float64
			if probTargets {
				tm, err := target.ClassRows()
				if err != nil {
					return Losses{}, err
				}
				partial, err = r.cls.prob(logit, tm)
				if err != nil {
					return Losses{}, fmt.Errorf("%s %s: %w", r.cfg.Conditions[c], r.cfg.Levels[l], err)
				}
			} else {
				partial, err = r.cls.index(logit, toIndices(target.Data()))
				if err != nil {
					return Losses{}, fmt.Errorf("%s %s: %w", r.cfg.Conditions[c], r.cfg.Levels[l], err)
				}
			}
			partials = append(partials, partial*r.cfg.ConditionWeight[c])
		}
	}

	out := Losses{Overall: stat.Mean(partials, nil)}
	if r.cfg.LevelLossWeight > 0 {
		out.Level, out.LevelSkipped, err = r.levelForward(levelLogits, levelTargets)
		if err != nil {
			return Losses{}, err
		}
	}
	out.Total = r.cfg.overallWeight()*out.Overall + r.cfg.LevelLossWeight*out.Level
	return out, nil
}

func (r *RSNA) levelForward(levelLogits, levelTargets *tensor.Dense) (float64, bool, error) {
	if levelLogits == nil || levelTargets == nil {
		return 0, false, ErrMissingLevelInputs
	}
	nl := len(r.cfg.Levels)
	if levelLogits.Rank() != 3 || levelLogits.Dim(1) != nl {
		return 0, false, fmt.Errorf("%w: level logits must be (N, %d, K)", ErrShapeMismatch, nl)
	}
	if levelTargets.Rank() != 2 || levelTargets.Dim(0) != levelLogits.Dim(0) || levelTargets.Dim(1) != nl {
		return 0, false, fmt.Errorf("%w: level targets must be (N, %d)", ErrShapeMismatch, nl)
	}

	var perLevel []float64
	for l := 0; l < nl; l++ {
		targets := toIndices(levelTargets.Take(1, l).Data())
		if !anyLabeled(targets, ignoreIndex(r.levelLoss.IgnoreIndex)) {
			continue
		}
		logit, err := levelLogits.Take(1, l).ClassRows()
		if err != nil {
			return 0, false, err
		}
		v, err := r.levelLoss.ForwardIndex(logit, targets)
		if err != nil {
			return 0, false, fmt.Errorf("level %s: %w", r.cfg.Levels[l], err)
		}
		perLevel = append(perLevel, v)
	}
	if len(perLevel) == 0 {
		return 0, true, nil
	}
	return stat.Mean(perLevel, nil), false, nil
}

// targetKind reports whether targets hold probabilities (same shape as logits)
// rather than class indices (logits shape without the class axis).
func targetKind(logits, targets *tensor.Dense) (bool, error) {
	if targets == nil {
		return false, fmt.Errorf("%w: nil targets", ErrShapeMismatch)
	}
	ls, ts := logits.Shape(), targets.Shape()
	switch {
	case equalShape(ls, ts):
		return true, nil
	case equalShape(ls[:len(ls)-1], ts):
		return false, nil
	}
	return false, fmt.Errorf("%w: logits %v, targets %v", ErrShapeMismatch, ls, ts)
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toIndices(values []float64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(math.Round(v))
	}
	return out
}

func anyLabeled(targets []int, ignore int) bool {
	for _, t := range targets {
		if t != ignore {
			return true
		}
	}
	return false
}
