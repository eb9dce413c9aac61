package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/spotit/internal/onnx"
)

// FakeEngine is a scripted inference engine. It records every call and
// returns Output (or Err). When Gate is non-nil, Run blocks until a value
// is received from it, which lets tests hold a call in flight.
type FakeEngine struct {
	Output []float32
	Err    error
	Panic  any
	Shape  []int64
	Gate   chan struct{}

	// Entered receives one value each time Run starts, if non-nil.
	Entered chan struct{}

	calls  atomic.Int64
	closed atomic.Bool

	mu        sync.Mutex
	lastInput onnx.Tensor
}

// NewFakeEngine returns an engine with a dynamic [1, -1, -1, -1] input.
func NewFakeEngine(output ...float32) *FakeEngine {
	return &FakeEngine{Output: output, Shape: []int64{1, -1, -1, -1}}
}

func (f *FakeEngine) Run(input onnx.Tensor) ([]float32, error) {
	f.calls.Add(1)
	if f.Entered != nil {
		f.Entered <- struct{}{}
	}
	if f.Gate != nil {
		<-f.Gate
	}
	if f.closed.Load() {
		return nil, errors.New("fake engine closed")
	}

	f.mu.Lock()
	f.lastInput = onnx.Tensor{
		Data:  append([]float32(nil), input.Data...),
		Shape: append([]int64(nil), input.Shape...),
	}
	f.mu.Unlock()

	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]float32(nil), f.Output...), nil
}

func (f *FakeEngine) InputShape() []int64 {
	return append([]int64(nil), f.Shape...)
}

func (f *FakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

// Calls returns the number of Run invocations.
func (f *FakeEngine) Calls() int {
	return int(f.calls.Load())
}

// Closed reports whether Close was called.
func (f *FakeEngine) Closed() bool {
	return f.closed.Load()
}

// LastInput returns a copy of the most recent input tensor.
func (f *FakeEngine) LastInput() onnx.Tensor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInput
}
