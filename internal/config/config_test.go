package config

import (
	"testing"

	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/onnx"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 1, c.ONNX.NumThreads)
	assert.Equal(t, "all", c.ONNX.GraphOptimization)
	assert.Equal(t, "xyxy", c.Detector.BoxFormat)
	assert.Equal(t, 6, c.Detector.OutputStride)
	assert.Equal(t, "block", c.Detector.BusyPolicy)
	assert.Equal(t, 2, c.Output.ConfidencePrecision)
	assert.Equal(t, registry.PolicyBlock, c.BusyPolicy())
	assert.Equal(t, logging.LevelInfo, c.Level())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"threads", func(c *Config) { c.ONNX.NumThreads = -2 }},
		{"graph optimization", func(c *Config) { c.ONNX.GraphOptimization = "max" }},
		{"gpu device", func(c *Config) { c.GPU.Device = -1 }},
		{"memory limit", func(c *Config) { c.GPU.MemoryLimit = "lots" }},
		{"box format", func(c *Config) { c.Detector.BoxFormat = "cxcywh" }},
		{"stride", func(c *Config) { c.Detector.OutputStride = 4 }},
		{"busy policy", func(c *Config) { c.Detector.BusyPolicy = "queue" }},
		{"precision high", func(c *Config) { c.Output.ConfidencePrecision = 9 }},
		{"precision negative", func(c *Config) { c.Output.ConfidencePrecision = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"512MB", 512 << 20, false},
		{"2gb", 2 << 30, false},
		{"1.5 KB", 1536, false},
		{"100B", 100, false},
		{"12", 0, true},
		{"xMB", 0, true},
		{"-1GB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMemoryLimit(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToDetectorConfig(t *testing.T) {
	c := DefaultConfig()
	c.ONNX.LibraryPath = "/opt/ort/libonnxruntime.so"
	c.ONNX.NumThreads = 4
	c.ONNX.GraphOptimization = "basic"
	c.GPU = GPUConfig{Enabled: true, Device: 1, MemoryLimit: "1GB"}
	c.Detector.BoxFormat = "xywh"
	c.Detector.OutputStride = 7
	c.Detector.LabelsPath = testutil.WriteFile(t, "labels.txt", "cat\ndog\n")

	dc, err := c.ToDetectorConfig()
	require.NoError(t, err)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", dc.LibraryPath)
	assert.Empty(t, dc.ModelPath)
	assert.Equal(t, detector.BoxXYWH, dc.BoxFormat)
	assert.Equal(t, 7, dc.OutputStride)
	assert.Equal(t, onnx.SessionConfig{
		NumThreads:        4,
		GraphOptimization: onnx.GraphOptBasic,
		GPU:               onnx.GPUConfig{UseGPU: true, DeviceID: 1, GPUMemLimit: 1 << 30},
	}, dc.Session)
	assert.Equal(t, "dog", dc.Labels.Symbol(1))
	require.NoError(t, dc.Validate())
}

func TestToDetectorConfigMissingLabels(t *testing.T) {
	c := DefaultConfig()
	c.Detector.LabelsPath = "/nonexistent/labels.txt"
	_, err := c.ToDetectorConfig()
	require.Error(t, err)
}

func TestLevelFallsBackToInfo(t *testing.T) {
	c := DefaultConfig()
	c.LogLevel = "debug"
	assert.Equal(t, logging.LevelDebug, c.Level())
	c.LogLevel = "bogus"
	assert.Equal(t, logging.LevelInfo, c.Level())
}
