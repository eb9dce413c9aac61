package detector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/spotit/internal/labels"
	"github.com/MeKo-Tech/spotit/internal/onnx"
)

// BoxFormat is the layout of the four box columns in a detection row.
type BoxFormat string

const (
	BoxXYXY BoxFormat = "xyxy" // x1, y1, x2, y2
	BoxXYWH BoxFormat = "xywh" // x, y, w, h with (x, y) the top-left corner
)

// MinOutputStride is the narrowest detection row: class, confidence, box.
const MinOutputStride = 6

// ParseBoxFormat accepts the config spelling. An empty string is xyxy.
func ParseBoxFormat(s string) (BoxFormat, error) {
	switch BoxFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", BoxXYXY:
		return BoxXYXY, nil
	case BoxXYWH:
		return BoxXYWH, nil
	default:
		return "", fmt.Errorf("unknown box format %q (want xyxy or xywh)", s)
	}
}

// Config holds everything needed to open one model.
type Config struct {
	ModelPath    string             // Path to the ONNX model
	LibraryPath  string             // ONNX Runtime shared library, empty to search
	Session      onnx.SessionConfig // Threads, graph optimisation, GPU
	Labels       *labels.Table      // Class id → symbol, nil for numeric symbols
	BoxFormat    BoxFormat          // Layout of box columns in the output
	OutputStride int                // Floats per detection row (default: 6)
}

// DefaultConfig returns a CPU, single-threaded configuration with no model.
func DefaultConfig() Config {
	return Config{
		Session:      onnx.DefaultSessionConfig(),
		BoxFormat:    BoxXYXY,
		OutputStride: MinOutputStride,
	}
}

// Validate checks the fields that do not depend on the model file.
func (c Config) Validate() error {
	if c.OutputStride < MinOutputStride {
		return fmt.Errorf("output stride must be >= %d, got %d", MinOutputStride, c.OutputStride)
	}
	if _, err := ParseBoxFormat(string(c.BoxFormat)); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func validateModelPath(path string) error {
	if path == "" {
		return errors.New("model path cannot be empty")
	}
	return nil
}
