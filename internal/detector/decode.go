package detector

import (
	"fmt"
	"math"
)

// Detection is one engine result in engine output order.
type Detection struct {
	Symbol     string
	Class      int
	Confidence float32
	X1, Y1     float32
	X2, Y2     float32
}

// decode splits a flat output into rows of stride floats:
// class, confidence, four box values, then ignored columns.
func decode(out []float32, cfg Config) ([]Detection, error) {
	stride := cfg.OutputStride
	if stride < MinOutputStride {
		return nil, fmt.Errorf("output stride %d < %d", stride, MinOutputStride)
	}
	if len(out)%stride != 0 {
		return nil, fmt.Errorf("output length %d is not a multiple of stride %d", len(out), stride)
	}
	dets := make([]Detection, 0, len(out)/stride)
	for i := 0; i < len(out); i += stride {
		row := out[i : i+stride]
		cls := float64(row[0])
		if math.IsNaN(cls) || math.IsInf(cls, 0) || cls < math.MinInt32 || cls > math.MaxInt32 {
			return nil, fmt.Errorf("row %d: invalid class value %v", i/stride, row[0])
		}
		class := int(math.Round(cls))
		d := Detection{
			Symbol:     cfg.Labels.Symbol(class),
			Class:      class,
			Confidence: row[1],
			X1:         row[2],
			Y1:         row[3],
			X2:         row[4],
			Y2:         row[5],
		}
		if cfg.BoxFormat == BoxXYWH {
			d.X2 = row[2] + row[4]
			d.Y2 = row[3] + row[5]
		}
		dets = append(dets, d)
	}
	return dets, nil
}
