// Package config provides configuration loading and management for lsdckeypoints.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"lsdckeypoints/pkg/augment"
	"lsdckeypoints/pkg/dataset"
	"lsdckeypoints/pkg/heatmap"
	"lsdckeypoints/pkg/logger"
	"lsdckeypoints/pkg/loss"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Dataset variants.
const (
	VariantSingle = "single"
	VariantMulti  = "multi"
)

// Augmentation kinds.
const (
	AugmentNone         = "none"
	AugmentResize       = "resize"
	AugmentAffine       = "affine"
	AugmentRandomAffine = "random_affine"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Dataset parameters
	Dataset struct {
		// ImageRoot is prepended to the image paths of the annotation table
		ImageRoot string `yaml:"imageRoot"`

		// Annotations is the path of the annotation CSV
		Annotations string `yaml:"annotations"`

		// Variant is "single" (one slice per row) or "multi" (stacked neighbours)
		Variant string `yaml:"variant"`

		// NumSlices is the odd number of stacked slices for the multi variant
		NumSlices int `yaml:"numSlices"`

		// UseCenter picks the middle slice of the series as the window centre
		UseCenter bool `yaml:"useCenter"`

		// ImageSize is the [width, height] every stacked slice is resized to
		ImageSize [2]int `yaml:"imageSize"`

		// Stride is the input-to-heatmap downsampling factor
		Stride int `yaml:"stride"`

		// HeatmapSize is the keypoint footprint in input pixels
		HeatmapSize [2]int `yaml:"heatmapSize"`

		// MinOverlap is the IoU threshold used to size the Gaussian
		MinOverlap float64 `yaml:"minOverlap"`
	} `yaml:"dataset"`

	// Augmentation parameters
	Augment struct {
		// Kind is one of none, resize, affine, random_affine
		Kind string `yaml:"kind"`

		// Size is the [width, height] for resize
		Size [2]int `yaml:"size"`

		Scale      float64 `yaml:"scale"`
		Rotate     float64 `yaml:"rotate"`
		TranslateX float64 `yaml:"translateX"`
		TranslateY float64 `yaml:"translateY"`

		// Ranges for random_affine
		ScaleRange    [2]float64 `yaml:"scaleRange"`
		RotateRange   [2]float64 `yaml:"rotateRange"`
		TranslateFrac float64    `yaml:"translateFrac"`

		// Probability of applying random_affine and of a horizontal flip
		P     float64 `yaml:"p"`
		FlipP float64 `yaml:"flipP"`
	} `yaml:"augment"`

	// Loss is the composite loss configuration
	Loss loss.Config `yaml:"loss"`

	// Loader parameters
	Loader struct {
		// Workers is the number of items fetched concurrently
		Workers int `yaml:"workers"`
	} `yaml:"loader"`

	// Logging parameters
	Logging logger.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	mopts := dataset.DefaultMultiOptions()
	cfg.Dataset.Variant = VariantSingle
	cfg.Dataset.NumSlices = mopts.NumSlices
	cfg.Dataset.ImageSize = mopts.ImageSize
	cfg.Dataset.Stride = mopts.Stride
	cfg.Dataset.HeatmapSize = mopts.HeatmapSize
	cfg.Dataset.MinOverlap = heatmap.DefaultMinOverlap

	cfg.Augment.Kind = AugmentNone
	cfg.Augment.Scale = 1
	cfg.Augment.ScaleRange = [2]float64{0.9, 1.1}
	cfg.Augment.RotateRange = [2]float64{-15, 15}
	cfg.Augment.TranslateFrac = 0.05
	cfg.Augment.P = 0.5

	cfg.Loss = loss.DefaultConfig()

	cfg.Loader.Workers = runtime.NumCPU()

	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks value ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	d := c.Dataset
	switch d.Variant {
	case VariantSingle:
	case VariantMulti:
		if d.NumSlices <= 0 || d.NumSlices%2 == 0 {
			return fmt.Errorf("%w: dataset.numSlices must be a positive odd number, got %d", ErrInvalid, d.NumSlices)
		}
		if d.ImageSize[0] <= 0 || d.ImageSize[1] <= 0 {
			return fmt.Errorf("%w: dataset.imageSize must be positive, got %v", ErrInvalid, d.ImageSize)
		}
	default:
		return fmt.Errorf("%w: dataset.variant must be %q or %q, got %q", ErrInvalid, VariantSingle, VariantMulti, d.Variant)
	}
	if d.Stride <= 0 {
		return fmt.Errorf("%w: dataset.stride must be positive, got %d", ErrInvalid, d.Stride)
	}
	if d.HeatmapSize[0] <= 0 || d.HeatmapSize[1] <= 0 {
		return fmt.Errorf("%w: dataset.heatmapSize must be positive, got %v", ErrInvalid, d.HeatmapSize)
	}
	if d.MinOverlap <= 0 || d.MinOverlap >= 1 {
		return fmt.Errorf("%w: dataset.minOverlap must be in (0,1), got %g", ErrInvalid, d.MinOverlap)
	}

	switch c.Augment.Kind {
	case "", AugmentNone, AugmentAffine, AugmentRandomAffine:
	case AugmentResize:
		if c.Augment.Size[0] <= 0 || c.Augment.Size[1] <= 0 {
			return fmt.Errorf("%w: augment.size must be positive for resize, got %v", ErrInvalid, c.Augment.Size)
		}
	default:
		return fmt.Errorf("%w: unknown augment.kind %q", ErrInvalid, c.Augment.Kind)
	}
	if c.Augment.P < 0 || c.Augment.P > 1 || c.Augment.FlipP < 0 || c.Augment.FlipP > 1 {
		return fmt.Errorf("%w: augment probabilities must be in [0,1]", ErrInvalid)
	}

	if _, err := loss.NewRSNA(c.Loss); err != nil {
		return fmt.Errorf("%w: loss: %v", ErrInvalid, err)
	}

	if c.Loader.Workers < 0 {
		return fmt.Errorf("%w: loader.workers must not be negative, got %d", ErrInvalid, c.Loader.Workers)
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	return nil
}

// Transform builds the augmentation pipeline described by the augment section.
func (c *Config) Transform() augment.Transform {
	a := c.Augment
	var steps augment.Compose
	switch a.Kind {
	case AugmentResize:
		steps = append(steps, augment.Resize{Width: a.Size[0], Height: a.Size[1]})
	case AugmentAffine:
		steps = append(steps, augment.Affine{
			Scale:      a.Scale,
			Rotate:     a.Rotate,
			TranslateX: a.TranslateX,
			TranslateY: a.TranslateY,
		})
	case AugmentRandomAffine:
		steps = append(steps, augment.RandomAffine{
			ScaleRange:    a.ScaleRange,
			RotateRange:   a.RotateRange,
			TranslateFrac: a.TranslateFrac,
			P:             a.P,
		})
	}
	if a.FlipP > 0 {
		steps = append(steps, augment.HorizontalFlip{P: a.FlipP})
	}
	switch len(steps) {
	case 0:
		return augment.Identity{}
	case 1:
		return steps[0]
	}
	return steps
}

// DatasetOptions returns the options shared by both dataset variants.
func (c *Config) DatasetOptions() dataset.Options {
	return dataset.Options{
		ImageRoot:   c.Dataset.ImageRoot,
		HeatmapSize: c.Dataset.HeatmapSize,
		Stride:      c.Dataset.Stride,
		MinOverlap:  c.Dataset.MinOverlap,
		Transform:   c.Transform(),
	}
}

// MultiOptions returns the multi-slice dataset options.
func (c *Config) MultiOptions() dataset.MultiOptions {
	return dataset.MultiOptions{
		Options:   c.DatasetOptions(),
		NumSlices: c.Dataset.NumSlices,
		UseCenter: c.Dataset.UseCenter,
		ImageSize: c.Dataset.ImageSize,
	}
}
