package imaging

import (
	"fmt"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
//
// Stain colours are easier to tell apart by hue than by RGB: haematoxylin
// sits in the blue-purple range, eosin in the pink-red range.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// ColorResult contains a color value in multiple representations.
type ColorResult struct {
	Hex string   `json:"hex"` // Hex format "#RRGGBB"
	RGB RGBColor `json:"rgb"`
	HSL HSLColor `json:"hsl"`
}

// SampleColor returns the color of one pixel of a raster.
//
// Parameters:
//   - r: The raster to sample from.
//   - x: X coordinate (0-based, 0 = leftmost pixel).
//   - y: Y coordinate (0-based, 0 = topmost pixel).
//
// Returns an error if the point is outside the raster.
func SampleColor(r *Raster, x, y int) (*ColorResult, error) {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return nil, fmt.Errorf("coordinates (%d,%d) outside raster bounds", x, y)
	}
	red, green, blue := r.At(x, y)
	return newColorResult(red, green, blue), nil
}

// AverageColor returns the mean color of a raster.
func AverageColor(r *Raster) *ColorResult {
	var sum [Channels]int
	for i, v := range r.Pix {
		sum[i%Channels] += int(v)
	}
	n := r.Width * r.Height
	if n == 0 {
		return newColorResult(0, 0, 0)
	}
	return newColorResult(
		uint8((sum[0]+n/2)/n),
		uint8((sum[1]+n/2)/n),
		uint8((sum[2]+n/2)/n),
	)
}

func newColorResult(r, g, b uint8) *ColorResult {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return &ColorResult{
		Hex: fmt.Sprintf("#%02X%02X%02X", r, g, b),
		RGB: RGBColor{R: r, G: g, B: b},
		HSL: HSLColor{
			H: int(math.Round(h)) % 360,
			S: int(math.Round(s * 100)),
			L: int(math.Round(l * 100)),
		},
	}
}

// ColorFrequency represents a color and its occurrence frequency in a raster.
type ColorFrequency struct {
	Hex        string   `json:"hex"`        // Hex color "#RRGGBB" (quantized)
	Percentage float64  `json:"percentage"` // Percentage of pixels with this color (0-100)
	RGB        RGBColor `json:"rgb"`        // RGB components (quantized)
}

// DominantColorsResult lists colors by frequency, most common first.
type DominantColorsResult struct {
	Colors []ColorFrequency `json:"colors"`
}

// DominantColors returns up to count of the most common colors in a raster.
//
// Colors are quantized to 16 levels per channel before counting
// (quantized = value / 16 * 16), so near-identical shades group together.
// Ties are broken by hex value to keep the result stable.
func DominantColors(r *Raster, count int) (*DominantColorsResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	counts := make(map[RGBColor]int)
	for i := 0; i+2 < len(r.Pix); i += Channels {
		key := RGBColor{R: r.Pix[i] / 16 * 16, G: r.Pix[i+1] / 16 * 16, B: r.Pix[i+2] / 16 * 16}
		counts[key]++
	}
	total := r.Width * r.Height

	colors := make([]ColorFrequency, 0, len(counts))
	for rgb, cnt := range counts {
		colors = append(colors, ColorFrequency{
			Hex:        fmt.Sprintf("#%02X%02X%02X", rgb.R, rgb.G, rgb.B),
			Percentage: float64(cnt) / float64(total) * 100,
			RGB:        rgb,
		})
	}

	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})

	if len(colors) > count {
		colors = colors[:count]
	}
	return &DominantColorsResult{Colors: colors}, nil
}
