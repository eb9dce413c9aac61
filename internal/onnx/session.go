package onnx

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yalue/onnxruntime_go"
)

// GraphOptimization selects how aggressively ONNX Runtime rewrites the graph.
type GraphOptimization string

const (
	GraphOptDisabled GraphOptimization = "disabled"
	GraphOptBasic    GraphOptimization = "basic"
	GraphOptExtended GraphOptimization = "extended"
	GraphOptAll      GraphOptimization = "all"
)

// ParseGraphOptimization accepts the config spelling of an optimisation level.
// An empty string selects GraphOptAll.
func ParseGraphOptimization(s string) (GraphOptimization, error) {
	switch GraphOptimization(strings.ToLower(strings.TrimSpace(s))) {
	case "", GraphOptAll:
		return GraphOptAll, nil
	case GraphOptDisabled:
		return GraphOptDisabled, nil
	case GraphOptBasic:
		return GraphOptBasic, nil
	case GraphOptExtended:
		return GraphOptExtended, nil
	default:
		return "", fmt.Errorf("unknown graph optimization level %q", s)
	}
}

func (g GraphOptimization) level() onnxruntime_go.GraphOptimizationLevel {
	switch g {
	case GraphOptDisabled:
		return onnxruntime_go.GraphOptimizationLevelDisableAll
	case GraphOptBasic:
		return onnxruntime_go.GraphOptimizationLevelEnableBasic
	case GraphOptExtended:
		return onnxruntime_go.GraphOptimizationLevelEnableExtended
	default:
		return onnxruntime_go.GraphOptimizationLevelEnableAll
	}
}

// GPUConfig holds configuration for CUDA acceleration.
type GPUConfig struct {
	UseGPU      bool   // Enable the CUDA execution provider
	DeviceID    int    // CUDA device ID
	GPUMemLimit uint64 // bytes, 0 = unlimited
}

// SessionConfig is everything needed to build session options for one model.
type SessionConfig struct {
	NumThreads        int
	GraphOptimization GraphOptimization
	GPU               GPUConfig
}

// DefaultSessionConfig mirrors a single-threaded, fully optimised CPU session.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		NumThreads:        1,
		GraphOptimization: GraphOptAll,
	}
}

// Validate checks a session configuration before any runtime call is made.
func (c SessionConfig) Validate() error {
	if c.NumThreads < 0 {
		return fmt.Errorf("num_threads must be >= 0, got %d", c.NumThreads)
	}
	if _, err := ParseGraphOptimization(string(c.GraphOptimization)); err != nil {
		return err
	}
	return ValidateGPUConfig(c.GPU)
}

// ValidateGPUConfig checks if the GPU configuration is valid.
func ValidateGPUConfig(config GPUConfig) error {
	if !config.UseGPU {
		return nil
	}
	if config.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", config.DeviceID)
	}
	return nil
}

// cudaSettings renders the provider option map for a GPU config.
func cudaSettings(cfg GPUConfig) map[string]string {
	settings := map[string]string{
		"device_id":                 strconv.Itoa(cfg.DeviceID),
		"arena_extend_strategy":     "kNextPowerOfTwo",
		"cudnn_conv_algo_search":    "DEFAULT",
		"do_copy_in_default_stream": "1",
	}
	if cfg.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(cfg.GPUMemLimit, 10)
	}
	return settings
}

// ConfigureSessionForGPU appends the CUDA execution provider. When the
// provider is unavailable the error is returned and the caller decides
// whether to continue on CPU.
func ConfigureSessionForGPU(opts *onnxruntime_go.SessionOptions, cfg GPUConfig) error {
	if !cfg.UseGPU {
		return nil
	}
	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cudaOpts.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cudaOpts.Update(cudaSettings(cfg)); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// NewSessionOptions builds runtime session options. The caller owns the
// result and must Destroy it once the session has been created. A failing
// CUDA provider falls back to CPU with a warning.
func NewSessionOptions(cfg SessionConfig) (*onnxruntime_go.SessionOptions, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	fail := func(err error) (*onnxruntime_go.SessionOptions, error) {
		_ = opts.Destroy()
		return nil, err
	}

	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return fail(fmt.Errorf("failed to set thread count: %w", err))
		}
	}
	opt, err := ParseGraphOptimization(string(cfg.GraphOptimization))
	if err != nil {
		return fail(err)
	}
	if err := opts.SetGraphOptimizationLevel(opt.level()); err != nil {
		return fail(fmt.Errorf("failed to set graph optimization level: %w", err))
	}
	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		slog.Warn("gpu unavailable, running on cpu", "device", cfg.GPU.DeviceID, "error", err)
	}
	return opts, nil
}
