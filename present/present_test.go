package present

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/openfluke/lumen/gpu"
)

func TestImageClampsAndConverts(t *testing.T) {
	pix := []gpu.Pixel{
		{R: 1, G: 0, B: 0.5, A: 1},
		{R: 2, G: -1, B: float32(math.NaN()), A: 0},
	}
	img, err := Image(2, 1, pix, 1)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x    int
		want color.NRGBA
	}{
		{0, color.NRGBA{R: 255, G: 0, B: 128, A: 255}},
		{1, color.NRGBA{R: 255, G: 0, B: 0, A: 0}},
	}
	for _, tt := range tests {
		if got := img.NRGBAAt(tt.x, 0); got != tt.want {
			t.Errorf("pixel %d = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestImageGamma(t *testing.T) {
	img, err := Image(1, 1, []gpu.Pixel{{R: 0.25, G: 0.25, B: 0.25, A: 0.25}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	got := img.NRGBAAt(0, 0)
	// sqrt(0.25) = 0.5 for colour; alpha stays linear.
	if got.R != 128 || got.A != 64 {
		t.Errorf("got %v", got)
	}
}

func TestImageRejectsShortInput(t *testing.T) {
	if _, err := Image(2, 2, make([]gpu.Pixel, 3), 1); err == nil {
		t.Error("short pixel slice accepted")
	}
	if _, err := Image(0, 2, nil, 1); err == nil {
		t.Error("zero width accepted")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"png": PNG, ".PNG": PNG, "jpg": JPEG, "jpeg": JPEG,
		"bmp": BMP, "tif": TIFF, ".tiff": TIFF,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("gif"); err == nil {
		t.Error("gif accepted")
	}
	if _, err := FormatFromPath("out"); err == nil {
		t.Error("path without extension accepted")
	}
}

func TestEncodeDecodes(t *testing.T) {
	img, err := Image(3, 2, make([]gpu.Pixel, 6), 2.2)
	if err != nil {
		t.Fatal(err)
	}

	decoders := map[Format]func(*bytes.Reader) (image.Image, error){
		BMP:  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
		TIFF: func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
		PNG: func(r *bytes.Reader) (image.Image, error) {
			img, _, err := image.Decode(r)
			return img, err
		},
	}
	for f, decode := range decoders {
		var buf bytes.Buffer
		if err := Encode(&buf, img, f); err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		out, err := decode(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("%s decode: %v", f, err)
		}
		if b := out.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
			t.Errorf("%s bounds = %v", f, b)
		}
	}
}

func TestSave(t *testing.T) {
	img, err := Image(1, 1, []gpu.Pixel{{R: 1, A: 1}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out", "frame.png")
	if err := Save(path, img); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("stat %s: %v", path, err)
	}
}
