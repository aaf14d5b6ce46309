// Package present turns mapped float pixels into 8-bit images and writes
// them out.
package present

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/openfluke/lumen/gpu"
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// ParseFormat accepts a format name or common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("unknown image format %q", s)
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%s: no file extension", path)
	}
	return ParseFormat(ext)
}

// Image converts row-major linear pixels into an NRGBA image, clamping to
// [0,1] and applying 1/gamma. A gamma of 0 or 1 leaves values linear.
func Image(width, height int, pixels []gpu.Pixel, gamma float64) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(pixels) < width*height {
		return nil, fmt.Errorf("have %d pixels, need %d", len(pixels), width*height)
	}
	inv := 1.0
	if gamma > 0 {
		inv = 1 / gamma
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, p := range pixels[:width*height] {
		o := i * 4
		img.Pix[o+0] = toByte(p.R, inv)
		img.Pix[o+1] = toByte(p.G, inv)
		img.Pix[o+2] = toByte(p.B, inv)
		img.Pix[o+3] = toByte(p.A, 1)
	}
	return img, nil
}

func toByte(v float32, invGamma float64) uint8 {
	f := float64(v)
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	if invGamma != 1 {
		f = math.Pow(f, invGamma)
	}
	return uint8(f*255 + 0.5)
}

// Encode writes img to w.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unknown image format %q", f)
}

// Save writes img to path, choosing the format from the extension.
func Save(path string, img image.Image) (err error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Encode(out, img, f)
}
