package testutil

// SolidImage returns a w*h*c interleaved buffer filled with value.
func SolidImage(w, h, c int, value byte) []byte {
	buf := make([]byte, w*h*c)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

// GradientImage returns a w*h*c interleaved buffer where channel k of
// pixel i holds byte(i + k).
func GradientImage(w, h, c int) []byte {
	buf := make([]byte, w*h*c)
	for i := range w * h {
		for k := range c {
			buf[i*c+k] = byte(i + k)
		}
	}
	return buf
}
