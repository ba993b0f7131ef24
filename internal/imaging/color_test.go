package imaging

import (
	"testing"
)

// createQuadrantRaster fills each quadrant with a different color
func createQuadrantRaster(width, height int) *Raster {
	r := NewRaster(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x < width/2 && y < height/2:
				r.Set(x, y, 255, 0, 0) // Red top-left
			case x >= width/2 && y < height/2:
				r.Set(x, y, 0, 255, 0) // Green top-right
			case x < width/2:
				r.Set(x, y, 0, 0, 255) // Blue bottom-left
			default:
				r.Set(x, y, 255, 255, 255) // White bottom-right
			}
		}
	}
	return r
}

func TestSampleColor(t *testing.T) {
	r := solidRaster(100, 100, 255, 128, 64)

	result, err := SampleColor(r, 50, 50)
	if err != nil {
		t.Fatalf("SampleColor failed: %v", err)
	}

	if result.Hex != "#FF8040" {
		t.Errorf("Hex: got %s, want #FF8040", result.Hex)
	}
	if result.RGB.R != 255 || result.RGB.G != 128 || result.RGB.B != 64 {
		t.Errorf("RGB: got (%d,%d,%d), want (255,128,64)", result.RGB.R, result.RGB.G, result.RGB.B)
	}
}

func TestSampleColor_HSL(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		wantHex string
		wantH   int
		wantS   int
		wantL   int
	}{
		{"pure red", 255, 0, 0, "#FF0000", 0, 100, 50},
		{"pure green", 0, 255, 0, "#00FF00", 120, 100, 50},
		{"pure blue", 0, 0, 255, "#0000FF", 240, 100, 50},
		{"white", 255, 255, 255, "#FFFFFF", 0, 0, 100},
		{"black", 0, 0, 0, "#000000", 0, 0, 0},
		{"gray", 128, 128, 128, "#808080", 0, 0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SampleColor(solidRaster(4, 4, tt.r, tt.g, tt.b), 1, 1)
			if err != nil {
				t.Fatalf("SampleColor failed: %v", err)
			}
			if result.Hex != tt.wantHex {
				t.Errorf("Hex: got %s, want %s", result.Hex, tt.wantHex)
			}
			// Allow some tolerance for rounding
			if abs(result.HSL.H-tt.wantH) > 1 {
				t.Errorf("H: got %d, want %d", result.HSL.H, tt.wantH)
			}
			if abs(result.HSL.S-tt.wantS) > 1 {
				t.Errorf("S: got %d, want %d", result.HSL.S, tt.wantS)
			}
			if abs(result.HSL.L-tt.wantL) > 1 {
				t.Errorf("L: got %d, want %d", result.HSL.L, tt.wantL)
			}
		})
	}
}

func TestSampleColor_OutOfBounds(t *testing.T) {
	r := solidRaster(100, 100, 255, 0, 0)

	tests := []struct {
		name string
		x, y int
	}{
		{"negative x", -1, 50},
		{"negative y", 50, -1},
		{"x too large", 100, 50},
		{"y too large", 50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SampleColor(r, tt.x, tt.y); err == nil {
				t.Error("SampleColor should fail for out-of-bounds coordinates")
			}
		})
	}

	if _, err := SampleColor(r, 99, 99); err != nil {
		t.Errorf("SampleColor failed for bottom-right pixel: %v", err)
	}
}

func TestAverageColor(t *testing.T) {
	r := createQuadrantRaster(10, 10)

	result := AverageColor(r)

	// (255 + 0 + 0 + 255) / 4 per channel for red, and so on
	if result.RGB.R != 128 || result.RGB.G != 128 || result.RGB.B != 128 {
		t.Errorf("average: got (%d,%d,%d), want (128,128,128)", result.RGB.R, result.RGB.G, result.RGB.B)
	}
}

func TestDominantColors(t *testing.T) {
	r := createQuadrantRaster(100, 100)

	result, err := DominantColors(r, 4)
	if err != nil {
		t.Fatalf("DominantColors failed: %v", err)
	}

	if len(result.Colors) != 4 {
		t.Fatalf("expected 4 colors, got %d", len(result.Colors))
	}

	for _, c := range result.Colors {
		if c.Percentage != 25 {
			t.Errorf("color %s: got %f%%, want 25%%", c.Hex, c.Percentage)
		}
	}

	// Equal shares are ordered by hex
	if result.Colors[0].Hex != "#0000F0" {
		t.Errorf("first color: got %s, want #0000F0", result.Colors[0].Hex)
	}
}

func TestDominantColors_Limit(t *testing.T) {
	r := createQuadrantRaster(20, 20)

	result, err := DominantColors(r, 2)
	if err != nil {
		t.Fatalf("DominantColors failed: %v", err)
	}
	if len(result.Colors) != 2 {
		t.Errorf("expected 2 colors, got %d", len(result.Colors))
	}

	if _, err := DominantColors(r, 0); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestDominantColors_SingleColor(t *testing.T) {
	result, err := DominantColors(solidRaster(50, 50, 128, 128, 128), 5)
	if err != nil {
		t.Fatalf("DominantColors failed: %v", err)
	}

	if len(result.Colors) != 1 {
		t.Fatalf("expected 1 color, got %d", len(result.Colors))
	}
	if result.Colors[0].Percentage != 100 {
		t.Errorf("expected 100%% for single color, got %f%%", result.Colors[0].Percentage)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
