package imaging

import (
	"fmt"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// DefaultTissueThreshold is the gray level below which a pixel counts as
// tissue. Empty glass scans at or near white.
const DefaultTissueThreshold = 220

// TissueResult reports how much of a region is covered by tissue.
type TissueResult struct {
	Threshold    int     `json:"threshold"`
	TissuePixels int     `json:"tissue_pixels"`
	TotalPixels  int     `json:"total_pixels"`
	Fraction     float64 `json:"fraction"`
}

// TissueFraction converts r to grayscale, thresholds it and counts the pixels
// darker than threshold.
func TissueFraction(r *Raster, threshold int) (*TissueResult, error) {
	if threshold < 1 || threshold > 255 {
		return nil, fmt.Errorf("threshold must be in [1,255], got %d", threshold)
	}

	gray := effect.Grayscale(r.ToImage())
	// Threshold maps values >= level to white; tissue is what stays black.
	mask := segment.Threshold(gray, uint8(threshold))

	tissue := 0
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := mask.Pix[(y-b.Min.Y)*mask.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if row[x] == 0 {
				tissue++
			}
		}
	}

	total := r.Width * r.Height
	fraction := 0.0
	if total > 0 {
		fraction = math.Round(float64(tissue)/float64(total)*10000) / 10000
	}
	return &TissueResult{
		Threshold:    threshold,
		TissuePixels: tissue,
		TotalPixels:  total,
		Fraction:     fraction,
	}, nil
}
