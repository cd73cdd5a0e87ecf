package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lsdckeypoints/internal/models"
	"lsdckeypoints/pkg/annotation"
	"lsdckeypoints/pkg/config"
	"lsdckeypoints/pkg/dataset"
	"lsdckeypoints/pkg/logger"
	"lsdckeypoints/pkg/visualization"
)

func encodeCommand(a *app) *cobra.Command {
	var (
		outputDir   string
		annotations string
		imageRoot   string
		variant     string
		workers     int
		previews    bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode every annotated study into keypoint heatmaps",
		Long: `Build the configured dataset from the annotation table, encode every row and
write keypoints.csv (absent levels as -1) to the output directory. With
--previews each item also gets heatmap channel PNGs and overlays.

A missing base slice aborts the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("annotations") {
				cfg.Dataset.Annotations = annotations
			}
			if cmd.Flags().Changed("image-root") {
				cfg.Dataset.ImageRoot = imageRoot
			}
			if cmd.Flags().Changed("variant") {
				cfg.Dataset.Variant = variant
			}
			if cmd.Flags().Changed("workers") {
				cfg.Loader.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Dataset.Annotations == "" {
				return fmt.Errorf("no annotation table: set dataset.annotations or --annotations")
			}

			ds, err := buildDataset(cfg, a)
			if err != nil {
				return err
			}
			return runEncode(cmd, a, ds, outputDir, previews)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "encoded", "Output directory")
	cmd.Flags().StringVarP(&annotations, "annotations", "a", "", "Annotation CSV (overrides dataset.annotations)")
	cmd.Flags().StringVar(&imageRoot, "image-root", "", "Image root directory (overrides dataset.imageRoot)")
	cmd.Flags().StringVar(&variant, "variant", "", "Dataset variant: single or multi")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent items (overrides loader.workers)")
	cmd.Flags().BoolVar(&previews, "previews", false, "Write heatmap PNGs and overlays per item")
	return cmd
}

func buildDataset(cfg *config.Config, a *app) (dataset.Dataset, error) {
	table, err := annotation.Load(cfg.Dataset.Annotations)
	if err != nil {
		return nil, err
	}

	if cfg.Dataset.Variant == config.VariantMulti {
		opts := cfg.MultiOptions()
		opts.Logger = a.log
		ds, err := dataset.NewMultiSlice(table, opts)
		if err != nil {
			return nil, err
		}
		return ds, nil
	}

	opts := cfg.DatasetOptions()
	opts.Logger = a.log
	ds, err := dataset.NewSingleSlice(table, opts)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func runEncode(cmd *cobra.Command, a *app, ds dataset.Dataset, outputDir string, previews bool) error {
	log := logger.Module(a.log, "encode")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	csvPath := filepath.Join(outputDir, "keypoints.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(keypointHeader()); err != nil {
		return err
	}

	loader := dataset.NewLoader(ds, a.cfg.Loader.Workers, a.log)
	log.Info("encoding", "items", ds.Len(), "workers", loader.Workers(), "output", outputDir)
	start := time.Now()

	err = loader.Each(cmd.Context(), func(index int, item dataset.Item) error {
		if err := w.Write(keypointRow(index, item)); err != nil {
			return err
		}
		if !previews {
			return nil
		}
		dir := filepath.Join(outputDir, fmt.Sprintf("%06d_%s", index, item.StudyID))
		v := visualization.NewViewer(item)
		if err := v.SaveChannelSequence(visualization.KindHeatmap, dir); err != nil {
			return fmt.Errorf("item %d previews: %w", index, err)
		}
		return v.SaveOverlays(dir)
	})
	if err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	log.Info("encoding completed", "items", ds.Len(), "elapsed", time.Since(start).Round(time.Millisecond), "csv", csvPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Encoded %d items to %s\n", ds.Len(), csvPath)
	return nil
}

func keypointHeader() []string {
	header := []string{"index", "study_id"}
	for _, l := range models.Levels {
		header = append(header, l.String()+"_x", l.String()+"_y")
	}
	return header
}

func keypointRow(index int, item dataset.Item) []string {
	row := []string{strconv.Itoa(index), item.StudyID}
	for _, p := range item.KeypointArray() {
		row = append(row,
			strconv.FormatFloat(p[0], 'f', -1, 64),
			strconv.FormatFloat(p[1], 'f', -1, 64))
	}
	return row
}
