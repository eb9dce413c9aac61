package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDetectionOutput(t *testing.T) {
	out := NewDetectionOutput(6,
		Row{Class: 2, Confidence: 0.9, Box: [4]float32{1, 2, 3, 4}},
		Row{Class: 0, Confidence: 1.5, Box: [4]float32{5, 6, 7, 8}},
	)
	require.Len(t, out.Data, 12)
	assert.Equal(t, []int64{1, 2, 6}, out.Shape)
	assert.Equal(t, []float32{2, 0.9, 1, 2, 3, 4}, out.Data[:6])
	assert.InDelta(t, 1.0, out.Data[7], 1e-6, "confidence is clamped")
}

func TestNewDetectionOutputWideStride(t *testing.T) {
	out := NewDetectionOutput(8, Row{Class: 1, Confidence: 0.5, Box: [4]float32{1, 1, 2, 2}})
	require.Len(t, out.Data, 8)
	assert.Zero(t, out.Data[6])
	assert.Zero(t, out.Data[7])
}

func TestNewDetectionOutputRejectsShortStride(t *testing.T) {
	out := NewDetectionOutput(5, Row{})
	assert.Empty(t, out.Data)
}

func TestNewGridOutput(t *testing.T) {
	out := NewGridOutput(4, 3, 10, 0.1)
	require.Len(t, out.Data, 24)
	assert.Equal(t, float32(0), out.Data[0])
	assert.Equal(t, float32(0), out.Data[18], "class cycles back to 0")
	assert.InDelta(t, 0.7, out.Data[19], 1e-6)
	assert.Equal(t, []float32{30, 0, 40, 10}, out.Data[20:24])

	assert.Empty(t, NewGridOutput(0, 3, 10, 0.1).Data)
}
