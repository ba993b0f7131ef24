package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// RegionResult is a raster encoded for transport to a client.
type RegionResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes r as a base64 PNG. A scale other than 1 resizes the
// output with a Lanczos filter first.
func EncodePNG(r *Raster, scale float64) (*RegionResult, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %g", scale)
	}

	var img image.Image = r.ToImage()
	if scale != 1.0 {
		newWidth := max(1, int(float64(r.Width)*scale))
		newHeight := max(1, int(float64(r.Height)*scale))
		img = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	return &RegionResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// WritePNG encodes r to a PNG file.
func WritePNG(r *Raster, path string) error {
	if err := imaging.Save(r.ToImage(), path, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Fit scales r down so neither side exceeds maxSize, keeping the aspect
// ratio. Rasters that already fit are returned as a copy.
func Fit(r *Raster, maxSize int) *Raster {
	return FromImage(imaging.Fit(r.ToImage(), maxSize, maxSize, imaging.Lanczos))
}

// NamedRegion resolves a named part of a width x height area.
func NamedRegion(name string, width, height int) (image.Rectangle, error) {
	midX := width / 2
	midY := height / 2

	switch name {
	case "", "full":
		return image.Rect(0, 0, width, height), nil
	case "top-left":
		return image.Rect(0, 0, midX, midY), nil
	case "top-right":
		return image.Rect(midX, 0, width, midY), nil
	case "bottom-left":
		return image.Rect(0, midY, midX, height), nil
	case "bottom-right":
		return image.Rect(midX, midY, width, height), nil
	case "top-half":
		return image.Rect(0, 0, width, midY), nil
	case "bottom-half":
		return image.Rect(0, midY, width, height), nil
	case "left-half":
		return image.Rect(0, 0, midX, height), nil
	case "right-half":
		return image.Rect(midX, 0, width, height), nil
	case "center":
		// Center 50% of the area
		qW := width / 4
		qH := height / 4
		return image.Rect(qW, qH, width-qW, height-qH), nil
	default:
		return image.Rectangle{}, fmt.Errorf("unknown region: %s", name)
	}
}
