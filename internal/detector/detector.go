// Package detector adapts an inference engine to raw interleaved pixel
// buffers. It validates input before the engine is touched, normalises
// pixels into a planar tensor, and decodes the flat output into Detections.
// Every failure it returns is an *Error.
package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/MeKo-Tech/spotit/internal/mempool"
	"github.com/MeKo-Tech/spotit/internal/onnx"
)

// Detector owns one engine. Run calls on a Detector must not overlap; the
// handle registry enforces that.
type Detector struct {
	config   Config
	engine   Engine
	channels int // fixed model channel count, 0 when dynamic
	mu       sync.RWMutex
}

// New opens cfg.ModelPath with ONNX Runtime.
func New(cfg Config) (*Detector, error) {
	return Open(cfg, OpenORT)
}

// Open validates cfg and the model file, then asks open for an engine.
// A missing or unreadable file and an engine that rejects the model both
// fail with KindModelLoad, and are logged with different messages.
func Open(cfg Config, open Opener) (*Detector, error) {
	const op = "init"
	if err := validateModelPath(cfg.ModelPath); err != nil {
		return nil, &Error{Kind: KindModelLoad, Op: op, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: KindModelLoad, Op: op, Err: fmt.Errorf("invalid config: %w", err)}
	}
	if err := checkModelFile(cfg.ModelPath); err != nil {
		slog.Error("model file not found", "path", cfg.ModelPath, "error", err)
		return nil, &Error{Kind: KindModelLoad, Op: op, Err: err}
	}

	engine, err := open(cfg)
	if err != nil {
		if errors.Is(err, onnx.ErrLibraryNotFound) {
			slog.Error("onnx runtime unavailable", "path", cfg.ModelPath, "error", err)
		} else {
			slog.Error("engine rejected model", "path", cfg.ModelPath, "error", err)
		}
		return nil, &Error{Kind: KindModelLoad, Op: op, Err: err}
	}

	d := &Detector{config: cfg, engine: engine}
	if shape := engine.InputShape(); len(shape) == 4 && shape[1] > 0 {
		d.channels = int(shape[1])
	}
	slog.Debug("detector initialized", "model", cfg.ModelPath, "channels", d.channels)
	return d, nil
}

func checkModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("model file not found: %s", path)
		}
		return fmt.Errorf("cannot access model file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read model file: %w", err)
	}
	return f.Close()
}

// Config returns the configuration the detector was opened with.
func (d *Detector) Config() Config {
	return d.config
}

// Channels returns the channel count the model requires, or 0 when any
// supported count is accepted.
func (d *Detector) Channels() int {
	return d.channels
}

// Close releases the engine. Further Run calls fail with KindInference.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	err := d.engine.Close()
	d.engine = nil
	return err
}

// validateInput checks dimensions and buffer length. It returns w*h*c.
func validateInput(n, width, height, channels, modelChannels int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("width and height must be > 0, got %dx%d", width, height)
	}
	switch channels {
	case 1, 3, 4:
	default:
		return 0, fmt.Errorf("channels must be 1, 3 or 4, got %d", channels)
	}
	if modelChannels > 0 && channels != modelChannels {
		return 0, fmt.Errorf("model expects %d channels, got %d", modelChannels, channels)
	}
	if width > math.MaxInt/height || width*height > math.MaxInt/channels {
		return 0, fmt.Errorf("image %dx%dx%d is too large", width, height, channels)
	}
	want := width * height * channels
	if n != want {
		return 0, fmt.Errorf("buffer length %d != width*height*channels (%d*%d*%d = %d)",
			n, width, height, channels, want)
	}
	return want, nil
}

// Run detects symbols in an interleaved 8-bit image. data is only read
// during the call.
func (d *Detector) Run(data []byte, width, height, channels int) ([]Detection, error) {
	const op = "detect"
	n, err := validateInput(len(data), width, height, channels, d.channels)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: op, Err: err}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.engine == nil {
		return nil, Errorf(KindInference, op, "detector is closed")
	}

	buf := mempool.GetFloat32(n)
	defer mempool.PutFloat32(buf)
	if err := onnx.NormalizeInterleaved(data, width, height, channels, buf); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: op, Err: err}
	}
	tensor, err := onnx.NewImageTensor(buf, channels, height, width)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: op, Err: err}
	}

	start := time.Now()
	out, err := d.runEngine(tensor)
	if err != nil {
		return nil, &Error{Kind: KindInference, Op: op, Err: err}
	}

	dets, err := decode(out, d.config)
	if err != nil {
		return nil, &Error{Kind: KindInference, Op: op, Err: err}
	}
	slog.Debug("detection finished",
		"width", width, "height", height, "channels", channels,
		"detections", len(dets), "duration", time.Since(start))
	return dets, nil
}

// runEngine converts an engine panic into an error so it never unwinds
// through the caller.
func (d *Detector) runEngine(t onnx.Tensor) (out []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return d.engine.Run(t)
}
