package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lsdckeypoints/pkg/heatmap"
)

func radiusCommand(a *app) *cobra.Command {
	var (
		height, width, stride int
		overlap               float64
	)

	cmd := &cobra.Command{
		Use:   "radius",
		Short: "Print the Gaussian radius for a keypoint footprint",
		Long: `Print the real-valued CenterNet Gaussian radius of a footprint given in
input pixels, and the integer stamp radius used by the encoder after dividing
the footprint by the stride.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("stride") {
				stride = a.cfg.Dataset.Stride
			}
			if !cmd.Flags().Changed("overlap") {
				overlap = a.cfg.Dataset.MinOverlap
			}
			if !cmd.Flags().Changed("height") {
				height = a.cfg.Dataset.HeatmapSize[0]
			}
			if !cmd.Flags().Changed("width") {
				width = a.cfg.Dataset.HeatmapSize[1]
			}
			if stride <= 0 {
				return fmt.Errorf("stride must be positive, got %d", stride)
			}

			h, w := float64(height/stride), float64(width/stride)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "footprint:  %dx%d px, stride %d, min overlap %g\n", height, width, stride, overlap)
			fmt.Fprintf(out, "radius:     %.6f\n", heatmap.GaussianRadius(h, w, overlap))
			fmt.Fprintf(out, "stamp:      %d\n", heatmap.Radius([2]int{height, width}, stride, overlap))
			return nil
		},
	}

	cmd.Flags().IntVar(&height, "height", 20, "Footprint height in input pixels")
	cmd.Flags().IntVar(&width, "width", 20, "Footprint width in input pixels")
	cmd.Flags().IntVar(&stride, "stride", 4, "Input-to-heatmap stride")
	cmd.Flags().Float64Var(&overlap, "overlap", heatmap.DefaultMinOverlap, "Minimum IoU overlap")
	return cmd
}
