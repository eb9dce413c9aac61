package onnx

import (
	"errors"
	"fmt"
)

// Tensor is a float32 tensor prepared for model input, row-major with NCHW
// layout for images.
type Tensor struct {
	Data  []float32
	Shape []int64 // [N, C, H, W]
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
// data must be length C*H*W in NCHW order.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if c <= 0 || h <= 0 || w <= 0 {
		return Tensor{}, fmt.Errorf("invalid dimensions c=%d h=%d w=%d", c, h, w)
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks data length matches the tensor's NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	expected := int(n * c * h * w)
	if len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// NormalizeInterleaved converts 8-bit interleaved HWC pixels into planar
// CHW floats scaled to [0, 1]. dst must hold exactly w*h*c values.
func NormalizeInterleaved(src []byte, w, h, c int, dst []float32) error {
	if w <= 0 || h <= 0 || c <= 0 {
		return fmt.Errorf("invalid dimensions w=%d h=%d c=%d", w, h, c)
	}
	plane := w * h
	if len(src) != plane*c {
		return fmt.Errorf("source length %d != %d", len(src), plane*c)
	}
	if len(dst) != plane*c {
		return fmt.Errorf("destination length %d != %d", len(dst), plane*c)
	}
	const inv = 1.0 / 255.0
	for i := range plane {
		px := src[i*c : i*c+c]
		for ch, v := range px {
			dst[ch*plane+i] = float32(v) * inv
		}
	}
	return nil
}

// TensorStats returns min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
