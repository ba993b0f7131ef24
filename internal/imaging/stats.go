package imaging

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ChannelStats summarizes one channel of a raster.
type ChannelStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    uint8   `json:"min"`
	Max    uint8   `json:"max"`
}

// RegionStats holds per-channel statistics of a raster region.
type RegionStats struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Pixels    int          `json:"pixels"`
	Red       ChannelStats `json:"red"`
	Green     ChannelStats `json:"green"`
	Blue      ChannelStats `json:"blue"`
	Luminance ChannelStats `json:"luminance"`
}

// MeasureRegion computes mean, sample standard deviation and range of every
// channel plus Rec. 601 luminance. Values are rounded to two decimals.
func MeasureRegion(r *Raster) *RegionStats {
	n := r.Width * r.Height
	planes := [4][]float64{
		make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n),
	}
	for i := 0; i < n; i++ {
		red, green, blue := r.Pix[i*3], r.Pix[i*3+1], r.Pix[i*3+2]
		planes[0][i] = float64(red)
		planes[1][i] = float64(green)
		planes[2][i] = float64(blue)
		planes[3][i] = math.Round(0.299*float64(red) + 0.587*float64(green) + 0.114*float64(blue))
	}

	return &RegionStats{
		Width:     r.Width,
		Height:    r.Height,
		Pixels:    n,
		Red:       channelStats(planes[0]),
		Green:     channelStats(planes[1]),
		Blue:      channelStats(planes[2]),
		Luminance: channelStats(planes[3]),
	}
}

func channelStats(values []float64) ChannelStats {
	if len(values) == 0 {
		return ChannelStats{}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return ChannelStats{
		Mean:   round2(mean),
		StdDev: round2(std),
		Min:    uint8(lo),
		Max:    uint8(hi),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
