package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lsdckeypoints/pkg/loss"
	"lsdckeypoints/pkg/tensor"
)

// tensorJSON is the wire form of a tensor: row-major data plus its shape.
type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func (t *tensorJSON) dense() (*tensor.Dense, error) {
	if t == nil {
		return nil, nil
	}
	return tensor.FromData(t.Data, t.Shape...)
}

// batch is one model output with its targets.
type batch struct {
	Logits       *tensorJSON `json:"logits"`
	Targets      *tensorJSON `json:"targets"`
	LevelLogits  *tensorJSON `json:"level_logits,omitempty"`
	LevelTargets *tensorJSON `json:"level_targets,omitempty"`
}

// lossResult is printed by the loss command.
type lossResult struct {
	Losses       map[string]float64 `json:"losses"`
	LevelSkipped bool               `json:"level_skipped"`
}

func readBatch(r io.Reader) (batch, error) {
	var b batch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return batch{}, fmt.Errorf("error parsing batch: %w", err)
	}
	if b.Logits == nil || b.Targets == nil {
		return batch{}, fmt.Errorf("batch needs logits and targets")
	}
	return b, nil
}

func evaluate(cfg loss.Config, b batch) (lossResult, error) {
	crit, err := loss.NewRSNA(cfg)
	if err != nil {
		return lossResult{}, err
	}

	var inputs [4]*tensor.Dense
	for i, t := range []*tensorJSON{b.Logits, b.Targets, b.LevelLogits, b.LevelTargets} {
		if inputs[i], err = t.dense(); err != nil {
			return lossResult{}, err
		}
	}

	out, err := crit.Forward(inputs[0], inputs[1], inputs[2], inputs[3])
	if err != nil {
		return lossResult{}, err
	}
	return lossResult{Losses: out.Map(), LevelSkipped: out.LevelSkipped}, nil
}

func lossCommand(a *app) *cobra.Command {
	var (
		kind            string
		gamma           float64
		levelLossWeight float64
	)

	cmd := &cobra.Command{
		Use:   "loss [batch.json|-]",
		Short: "Evaluate the composite RSNA loss on a JSON batch",
		Long: `Evaluate the composite loss configured in the loss section on a batch of
logits and targets. Every tensor is given as {"shape": [...], "data": [...]}:

  logits         (N, conditions, levels, classes)
  targets        same shape (probabilities) or (N, conditions, levels) (indices)
  level_logits   (N, levels, K), read when levelLossWeight > 0
  level_targets  (N, levels) with -100 for unlabeled rows`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Loss
			if cmd.Flags().Changed("kind") {
				cfg.Kind = kind
			}
			if cmd.Flags().Changed("gamma") {
				cfg.Gamma = gamma
			}
			if cmd.Flags().Changed("level-loss-weight") {
				cfg.LevelLossWeight = levelLossWeight
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			b, err := readBatch(in)
			if err != nil {
				return err
			}
			res, err := evaluate(cfg, b)
			if err != nil {
				return err
			}
			if res.LevelSkipped {
				a.log.Warn("level loss skipped: every level target is ignored")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Loss kind: CrossEntropyLoss or FocalLoss (overrides loss.kind)")
	cmd.Flags().Float64Var(&gamma, "gamma", 0, "Focal gamma (overrides loss.gamma)")
	cmd.Flags().Float64Var(&levelLossWeight, "level-loss-weight", 0, "Level loss weight (overrides loss.levelLossWeight)")
	return cmd
}
