// Package mock builds synthetic model outputs in the detection row layout
// [class, confidence, b0, b1, b2, b3, extra...].
package mock

// Row is one synthetic detection. Box holds the four box values in whatever
// format the consumer expects (xyxy or xywh).
type Row struct {
	Class      int
	Confidence float32
	Box        [4]float32
}

// Output is a flat detection tensor with shape [1, N, stride].
type Output struct {
	Data  []float32
	Shape []int64
}

// NewDetectionOutput lays rows out with the given stride. Columns past the
// first six are zero. A stride below 6 yields an empty output.
func NewDetectionOutput(stride int, rows ...Row) Output {
	if stride < 6 {
		return Output{Shape: []int64{}}
	}
	data := make([]float32, len(rows)*stride)
	for i, r := range rows {
		off := i * stride
		data[off] = float32(r.Class)
		data[off+1] = clamp01(r.Confidence)
		copy(data[off+2:off+6], r.Box[:])
	}
	return Output{Data: data, Shape: []int64{1, int64(len(rows)), int64(stride)}}
}

// NewGridOutput places n boxes of size cell on a horizontal strip, with
// classes cycling over [0, classes) and confidence falling from 1 by step.
func NewGridOutput(n, classes int, cell, step float32) Output {
	if n <= 0 || classes <= 0 {
		return Output{Shape: []int64{}}
	}
	rows := make([]Row, n)
	for i := range rows {
		x := float32(i) * cell
		rows[i] = Row{
			Class:      i % classes,
			Confidence: 1 - float32(i)*step,
			Box:        [4]float32{x, 0, x + cell, cell},
		}
	}
	return NewDetectionOutput(6, rows...)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
