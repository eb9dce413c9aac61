package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/labels"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/onnx"
	"github.com/MeKo-Tech/spotit/internal/registry"
)

// Config is the complete runtime configuration of the library and CLI.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"` // CLI only

	ONNX     ONNXConfig     `mapstructure:"onnx" yaml:"onnx" json:"onnx"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// ONNXConfig selects the runtime library and session options.
type ONNXConfig struct {
	LibraryPath       string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	NumThreads        int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GraphOptimization string `mapstructure:"graph_optimization" yaml:"graph_optimization" json:"graph_optimization"`
}

// GPUConfig enables the CUDA execution provider.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// DetectorConfig describes the model output and handle behaviour.
type DetectorConfig struct {
	LabelsPath   string `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	BoxFormat    string `mapstructure:"box_format" yaml:"box_format" json:"box_format"`
	OutputStride int    `mapstructure:"output_stride" yaml:"output_stride" json:"output_stride"`
	BusyPolicy   string `mapstructure:"busy_policy" yaml:"busy_policy" json:"busy_policy"`
}

// OutputConfig controls result formatting.
type OutputConfig struct {
	ConfidencePrecision int `mapstructure:"confidence_precision" yaml:"confidence_precision" json:"confidence_precision"`
}

// MetricsConfig controls the metrics exposed through the bridge.
type MetricsConfig struct {
	GoRuntime bool `mapstructure:"go_runtime" yaml:"go_runtime" json:"go_runtime"`
}

// MaxConfidencePrecision bounds output.confidence_precision.
const MaxConfidencePrecision = 6

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		ONNX: ONNXConfig{
			NumThreads:        1,
			GraphOptimization: string(onnx.GraphOptAll),
		},
		GPU: GPUConfig{
			Device:      0,
			MemoryLimit: "auto",
		},
		Detector: DetectorConfig{
			BoxFormat:    string(detector.BoxXYXY),
			OutputStride: detector.MinOutputStride,
			BusyPolicy:   registry.PolicyBlock.String(),
		},
		Output: OutputConfig{
			ConfidencePrecision: 2,
		},
	}
}

// Validate checks all fields.
func (c *Config) Validate() error {
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.ONNX.NumThreads < 0 {
		return fmt.Errorf("invalid onnx.num_threads: %d (must be >= 0)", c.ONNX.NumThreads)
	}
	if _, err := onnx.ParseGraphOptimization(c.ONNX.GraphOptimization); err != nil {
		return fmt.Errorf("invalid onnx.graph_optimization: %w", err)
	}
	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid gpu.device: %d (must be >= 0)", c.GPU.Device)
	}
	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	if _, err := detector.ParseBoxFormat(c.Detector.BoxFormat); err != nil {
		return fmt.Errorf("invalid detector.box_format: %w", err)
	}
	if c.Detector.OutputStride < detector.MinOutputStride {
		return fmt.Errorf("invalid detector.output_stride: %d (must be >= %d)",
			c.Detector.OutputStride, detector.MinOutputStride)
	}
	if _, err := registry.ParseBusyPolicy(c.Detector.BusyPolicy); err != nil {
		return fmt.Errorf("invalid detector.busy_policy: %w", err)
	}
	if p := c.Output.ConfidencePrecision; p < 0 || p > MaxConfidencePrecision {
		return fmt.Errorf("invalid output.confidence_precision: %d (must be between 0 and %d)",
			p, MaxConfidencePrecision)
	}
	return nil
}

// Level returns the configured minimum log level, defaulting to info.
func (c *Config) Level() logging.Level {
	lvl, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

// BusyPolicy returns the registry policy, defaulting to block.
func (c *Config) BusyPolicy() registry.BusyPolicy {
	p, _ := registry.ParseBusyPolicy(c.Detector.BusyPolicy)
	return p
}

// ToSessionConfig converts the onnx and gpu sections.
func (c *Config) ToSessionConfig() onnx.SessionConfig {
	opt, err := onnx.ParseGraphOptimization(c.ONNX.GraphOptimization)
	if err != nil {
		opt = onnx.GraphOptAll
	}
	limit, _ := parseMemoryLimit(c.GPU.MemoryLimit)
	return onnx.SessionConfig{
		NumThreads:        c.ONNX.NumThreads,
		GraphOptimization: opt,
		GPU: onnx.GPUConfig{
			UseGPU:      c.GPU.Enabled,
			DeviceID:    c.GPU.Device,
			GPUMemLimit: limit,
		},
	}
}

// ToDetectorConfig builds the per-model template. ModelPath is left empty;
// the label file is read here so every handle shares one table.
func (c *Config) ToDetectorConfig() (detector.Config, error) {
	tbl, err := labels.Load(c.Detector.LabelsPath)
	if err != nil {
		return detector.Config{}, err
	}
	format, err := detector.ParseBoxFormat(c.Detector.BoxFormat)
	if err != nil {
		return detector.Config{}, err
	}
	return detector.Config{
		LibraryPath:  c.ONNX.LibraryPath,
		Session:      c.ToSessionConfig(),
		Labels:       tbl,
		BoxFormat:    format,
		OutputStride: c.Detector.OutputStride,
	}, nil
}

// parseMemoryLimit converts "512MB", "2GB" and similar to bytes. "" and
// "auto" mean no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	s := strings.ToUpper(strings.TrimSpace(limit))
	if s == "" || s == "AUTO" {
		return 0, nil
	}
	units := []struct {
		suffix string
		mult   float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.mult), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
