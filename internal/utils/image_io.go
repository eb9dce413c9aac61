// Package utils loads image files and flattens them into the interleaved
// 8-bit buffers the detector consumes.
package utils

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageError wraps a failure in one image operation.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image error in %s: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, &ImageError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, &ImageError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, &ImageError{Operation: "load", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close image file", "path", path, "error", err)
		}
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &ImageError{Operation: "decode", Err: err}
	}
	return img, nil
}

// FitImage scales img down to fit within maxSide on both axes, keeping the
// aspect ratio. maxSide <= 0 or an image that already fits is returned as is.
func FitImage(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// Interleave flattens img into row-major bytes with channels values per
// pixel: 1 is luma, 3 is RGB, 4 is RGBA (non-premultiplied).
func Interleave(img image.Image, channels int) ([]byte, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageError{Operation: "interleave", Err: errors.New("input image is nil")}
	}
	switch channels {
	case 1, 3, 4:
	default:
		return nil, 0, 0, &ImageError{Operation: "interleave", Err: fmt.Errorf("unsupported channel count %d", channels)}
	}

	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	out := make([]byte, w*h*channels)
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := range w {
			px := row[x*4 : x*4+4]
			o := (y*w + x) * channels
			switch channels {
			case 1:
				// ITU-R 601 luma, as image/color.GrayModel.
				lum := (19595*uint32(px[0]) + 38470*uint32(px[1]) + 7471*uint32(px[2]) + 1<<15) >> 16
				out[o] = byte(lum)
			case 3:
				copy(out[o:o+3], px[:3])
			case 4:
				copy(out[o:o+4], px)
			}
		}
	}
	return out, w, h, nil
}
