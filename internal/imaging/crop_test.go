package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func decodeRegion(t *testing.T, result *RegionResult) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	return img
}

func TestEncodePNG(t *testing.T) {
	r := createQuadrantRaster(100, 80)

	result, err := EncodePNG(r, 1.0)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	if result.Width != 100 || result.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	// Unscaled output is lossless
	img := decodeRegion(t, result)
	if !FromImage(img).Equal(r) {
		t.Error("decoded PNG does not match the raster")
	}
}

func TestEncodePNG_Scale(t *testing.T) {
	r := solidRaster(100, 100, 255, 0, 0)

	tests := []struct {
		name  string
		scale float64
		want  int
	}{
		{"up", 2.0, 200},
		{"down", 0.5, 50},
		{"tiny", 0.001, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EncodePNG(r, tt.scale)
			if err != nil {
				t.Fatalf("EncodePNG failed: %v", err)
			}
			if result.Width != tt.want || result.Height != tt.want {
				t.Errorf("scaled dimensions: got %dx%d, want %dx%d", result.Width, result.Height, tt.want, tt.want)
			}
		})
	}

	if _, err := EncodePNG(r, 0); err == nil {
		t.Error("expected error for zero scale")
	}
}

func TestWritePNG(t *testing.T) {
	r := createQuadrantRaster(20, 20)
	path := filepath.Join(t.TempDir(), "region.png")

	if err := WritePNG(r, path); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !FromImage(img).Equal(r) {
		t.Error("written PNG does not match the raster")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name          string
		w, h, maxSize int
		wantW, wantH  int
	}{
		{"landscape", 200, 100, 50, 50, 25},
		{"portrait", 60, 120, 30, 15, 30},
		{"already fits", 40, 20, 64, 40, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Fit(solidRaster(tt.w, tt.h, 10, 20, 30), tt.maxSize)
			if out.Width != tt.wantW || out.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", out.Width, out.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestNamedRegion(t *testing.T) {
	tests := []struct {
		name string
		want image.Rectangle
	}{
		{"full", image.Rect(0, 0, 100, 60)},
		{"", image.Rect(0, 0, 100, 60)},
		{"top-left", image.Rect(0, 0, 50, 30)},
		{"top-right", image.Rect(50, 0, 100, 30)},
		{"bottom-left", image.Rect(0, 30, 50, 60)},
		{"bottom-right", image.Rect(50, 30, 100, 60)},
		{"top-half", image.Rect(0, 0, 100, 30)},
		{"bottom-half", image.Rect(0, 30, 100, 60)},
		{"left-half", image.Rect(0, 0, 50, 60)},
		{"right-half", image.Rect(50, 0, 100, 60)},
		{"center", image.Rect(25, 15, 75, 45)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NamedRegion(tt.name, 100, 60)
			if err != nil {
				t.Fatalf("NamedRegion failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNamedRegion_Invalid(t *testing.T) {
	if _, err := NamedRegion("middle-ish", 10, 10); err == nil {
		t.Error("expected error for unknown region")
	}
}

func TestNamedRegion_OddDimensions(t *testing.T) {
	// 101x101: halves split at 50
	got, err := NamedRegion("bottom-right", 101, 101)
	if err != nil {
		t.Fatalf("NamedRegion failed: %v", err)
	}
	if got.Dx() != 51 || got.Dy() != 51 {
		t.Errorf("bottom-right of odd image: got %dx%d, want 51x51", got.Dx(), got.Dy())
	}
}
