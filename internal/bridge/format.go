package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/version"
)

// Status codes in the system status line.
const (
	StatusReady    = 0
	StatusDegraded = 1
	StatusInternal = 2
)

var symbolReplacer = strings.NewReplacer(":", "_", ";", "_")

// FormatDetections renders detections as
// "symbol:confidence:x1:y1:x2:y2;..." in order. Confidence has precision
// decimals; coordinates use the shortest exact decimal. Separators inside
// symbols are replaced with '_'. No detections render as "".
func FormatDetections(dets []detector.Detection, precision int) string {
	if len(dets) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(dets) * 32)
	for i, d := range dets {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(symbolReplacer.Replace(d.Symbol))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(float64(d.Confidence), 'f', precision, 32))
		for _, v := range [4]float32{d.X1, d.Y1, d.X2, d.Y2} {
			b.WriteByte(':')
			b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
		}
	}
	return b.String()
}

// FormatStatus renders "version:code:message". The version never contains
// ':'; the message may.
func FormatStatus(code int, message string) string {
	return version.Short() + ":" + strconv.Itoa(code) + ":" + message
}

// ParseDetections reads a result string produced by FormatDetections.
// Class is left zero; the symbol is kept as text.
func ParseDetections(s string) ([]detector.Detection, error) {
	if s == "" {
		return nil, nil
	}
	records := strings.Split(s, ";")
	dets := make([]detector.Detection, 0, len(records))
	for i, rec := range records {
		fields := strings.Split(rec, ":")
		if len(fields) != 6 {
			return nil, fmt.Errorf("detection %d: expected 6 fields, got %d", i, len(fields))
		}
		var vals [5]float32
		for j, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("detection %d field %d: %w", i, j+1, err)
			}
			vals[j] = float32(v)
		}
		dets = append(dets, detector.Detection{
			Symbol:     fields[0],
			Confidence: vals[0],
			X1:         vals[1],
			Y1:         vals[2],
			X2:         vals[3],
			Y2:         vals[4],
		})
	}
	return dets, nil
}
