package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/spotit/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// Engine runs one loaded model. Run receives a [1, C, H, W] tensor and
// returns the flat output; the returned slice must not alias engine-owned
// memory. Implementations need not be safe for concurrent Run calls.
type Engine interface {
	Run(input onnx.Tensor) ([]float32, error)
	// InputShape returns the model's declared input dimensions; negative
	// values are dynamic.
	InputShape() []int64
	Close() error
}

// Opener creates an Engine for a validated config.
type Opener func(cfg Config) (Engine, error)

type ortEngine struct {
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.Mutex
}

// OpenORT loads cfg.ModelPath into an ONNX Runtime session.
func OpenORT(cfg Config) (Engine, error) {
	if err := onnx.Initialize(cfg.LibraryPath, cfg.Session.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := modelInfo(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	opts, err := onnx.NewSessionOptions(cfg.Session)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("onnx session created",
		"model", cfg.ModelPath,
		"input", inputInfo.Name,
		"input_shape", []int64(inputInfo.Dimensions),
		"output", outputInfo.Name)

	return &ortEngine{session: session, inputInfo: inputInfo, outputInfo: outputInfo}, nil
}

// modelInfo picks the first input and output of the model. Extra inputs or
// outputs are ignored.
func modelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	var none onnxruntime_go.InputOutputInfo
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return none, none, fmt.Errorf("model has %d inputs and %d outputs, need at least one of each",
			len(inputs), len(outputs))
	}
	if len(inputs) > 1 || len(outputs) > 1 {
		slog.Debug("model has several inputs or outputs, using the first",
			"inputs", len(inputs), "outputs", len(outputs))
	}
	in := inputs[0]
	if len(in.Dimensions) != 4 {
		return none, none, fmt.Errorf("expected 4D input tensor, got %dD", len(in.Dimensions))
	}
	if in.DataType != onnxruntime_go.TensorElementDataTypeFloat {
		return none, none, fmt.Errorf("expected float input tensor, got %v", in.DataType)
	}
	return in, outputs[0], nil
}

func (e *ortEngine) InputShape() []int64 {
	shape := make([]int64, len(e.inputInfo.Dimensions))
	copy(shape, e.inputInfo.Dimensions)
	return shape
}

func (e *ortEngine) Run(input onnx.Tensor) ([]float32, error) {
	if err := onnx.VerifyImageTensor(input); err != nil {
		return nil, fmt.Errorf("invalid tensor: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("session is closed")
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := e.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("session run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, errors.New("model produced no output")
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	floatTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("expected float32 output tensor, got %T", outputs[0])
	}
	data := floatTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (e *ortEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
