package imaging

import (
	"testing"
)

func TestMeasureRegion_Uniform(t *testing.T) {
	stats := MeasureRegion(solidRaster(10, 10, 200, 100, 50))

	if stats.Pixels != 100 {
		t.Errorf("Pixels: got %d, want 100", stats.Pixels)
	}
	if stats.Red.Mean != 200 || stats.Green.Mean != 100 || stats.Blue.Mean != 50 {
		t.Errorf("means: got (%v,%v,%v), want (200,100,50)", stats.Red.Mean, stats.Green.Mean, stats.Blue.Mean)
	}
	if stats.Red.StdDev != 0 {
		t.Errorf("StdDev: got %v, want 0", stats.Red.StdDev)
	}
	if stats.Red.Min != 200 || stats.Red.Max != 200 {
		t.Errorf("range: got [%d,%d], want [200,200]", stats.Red.Min, stats.Red.Max)
	}
}

func TestMeasureRegion_TwoValues(t *testing.T) {
	// Left half black, right half white
	r := NewRaster(2, 1)
	r.Set(1, 0, 255, 255, 255)

	stats := MeasureRegion(r)

	if stats.Red.Mean != 127.5 {
		t.Errorf("Mean: got %v, want 127.5", stats.Red.Mean)
	}
	// Sample standard deviation of {0, 255}
	if stats.Red.StdDev != 180.31 {
		t.Errorf("StdDev: got %v, want 180.31", stats.Red.StdDev)
	}
	if stats.Luminance.Min != 0 || stats.Luminance.Max != 255 {
		t.Errorf("luminance range: got [%d,%d], want [0,255]", stats.Luminance.Min, stats.Luminance.Max)
	}
}

func TestMeasureRegion_Luminance(t *testing.T) {
	stats := MeasureRegion(solidRaster(4, 4, 255, 0, 0))

	// 0.299 * 255 = 76.245
	if stats.Luminance.Mean != 76 {
		t.Errorf("luminance: got %v, want 76", stats.Luminance.Mean)
	}
}
