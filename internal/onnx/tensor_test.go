package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	tensor, err := NewImageTensor(make([]float32, 3*4*5), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	require.NoError(t, VerifyImageTensor(tensor))

	_, err = NewImageTensor(nil, 3, 4, 5)
	require.Error(t, err)

	_, err = NewImageTensor(make([]float32, 10), 3, 4, 5)
	require.ErrorContains(t, err, "unexpected data length")

	_, err = NewImageTensor(make([]float32, 0), 0, 4, 5)
	require.Error(t, err)
}

func TestValidateNCHW(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		wantErr bool
	}{
		{"valid", []int64{1, 3, 32, 32}, false},
		{"rank 3", []int64{3, 32, 32}, true},
		{"zero dim", []int64{1, 0, 32, 32}, true},
		{"negative dim", []int64{1, 3, -1, 32}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNCHW(tt.shape)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyImageTensorLengthMismatch(t *testing.T) {
	err := VerifyImageTensor(Tensor{Data: make([]float32, 5), Shape: []int64{1, 1, 2, 2}})
	require.ErrorContains(t, err, "tensor data length 5")
}

func TestNormalizeInterleavedRGB(t *testing.T) {
	// 2x1 image: red pixel then white pixel.
	src := []byte{255, 0, 0, 255, 255, 255}
	dst := make([]float32, 6)
	require.NoError(t, NormalizeInterleaved(src, 2, 1, 3, dst))

	// Planes: R R G G B B
	assert.InDeltaSlice(t, []float32{1, 1, 0, 1, 0, 1}, dst, 1e-6)
}

func TestNormalizeInterleavedGray(t *testing.T) {
	src := []byte{0, 51, 102, 255}
	dst := make([]float32, 4)
	require.NoError(t, NormalizeInterleaved(src, 2, 2, 1, dst))
	assert.InDeltaSlice(t, []float32{0, 0.2, 0.4, 1}, dst, 1e-6)
}

func TestNormalizeInterleavedRGBA(t *testing.T) {
	src := []byte{10, 20, 30, 40}
	dst := make([]float32, 4)
	require.NoError(t, NormalizeInterleaved(src, 1, 1, 4, dst))
	assert.InDeltaSlice(t, []float32{10.0 / 255, 20.0 / 255, 30.0 / 255, 40.0 / 255}, dst, 1e-6)
}

func TestNormalizeInterleavedErrors(t *testing.T) {
	dst := make([]float32, 6)
	require.Error(t, NormalizeInterleaved(make([]byte, 6), 0, 1, 3, dst))
	require.Error(t, NormalizeInterleaved(make([]byte, 5), 2, 1, 3, dst))
	require.Error(t, NormalizeInterleaved(make([]byte, 6), 2, 1, 3, make([]float32, 5)))
}

func TestTensorStats(t *testing.T) {
	minV, maxV, mean := TensorStats([]float32{1, -2, 4, 1})
	assert.Equal(t, float32(-2), minV)
	assert.Equal(t, float32(4), maxV)
	assert.InDelta(t, 1.0, mean, 1e-6)

	minV, maxV, mean = TensorStats(nil)
	assert.Zero(t, minV)
	assert.Zero(t, maxV)
	assert.Zero(t, mean)
}
