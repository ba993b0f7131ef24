package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Channels is the number of interleaved 8-bit samples per pixel (R, G, B).
const Channels = 3

// Raster is an interleaved 8-bit RGB pixel buffer in row-major order.
//
// Pix holds exactly Width*Height*Channels bytes; pixel (x, y) starts at
// Pix[(y*Width+x)*Channels]. Rasters are the unit exchanged with the slide
// engine: tile payloads, write blocks and read results all use this layout.
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRaster allocates a zeroed (black) raster.
func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]byte, width*height*Channels)}
}

// RasterFromBytes wraps pix without copying. The length must match the shape.
func RasterFromBytes(width, height int, pix []byte) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster dimensions must be positive, got %dx%d", width, height)
	}
	if len(pix) != width*height*Channels {
		return nil, fmt.Errorf("raster %dx%d needs %d bytes, got %d", width, height, width*height*Channels, len(pix))
	}
	return &Raster{Width: width, Height: height, Pix: pix}, nil
}

// Stride is the byte length of one row.
func (r *Raster) Stride() int {
	return r.Width * Channels
}

// Bounds returns the raster rectangle anchored at the origin.
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// At returns the samples at (x, y). The caller guarantees the point is in bounds.
func (r *Raster) At(x, y int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * Channels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Set writes the samples at (x, y).
func (r *Raster) Set(x, y int, red, green, blue uint8) {
	i := (y*r.Width + x) * Channels
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = red, green, blue
}

// CopyRect copies the src rectangle of src into r with its top-left corner at
// (dstX, dstY). Both rectangles must lie inside their rasters.
func (r *Raster) CopyRect(src *Raster, rect image.Rectangle, dstX, dstY int) {
	rowBytes := rect.Dx() * Channels
	for y := 0; y < rect.Dy(); y++ {
		s := ((rect.Min.Y+y)*src.Width + rect.Min.X) * Channels
		d := ((dstY+y)*r.Width + dstX) * Channels
		copy(r.Pix[d:d+rowBytes], src.Pix[s:s+rowBytes])
	}
}

// Crop returns a copy of rect. rect must lie inside the raster.
func (r *Raster) Crop(rect image.Rectangle) *Raster {
	out := NewRaster(rect.Dx(), rect.Dy())
	out.CopyRect(r, rect, 0, 0)
	return out
}

// Pad returns a width x height copy with r in the top-left corner and zeros elsewhere.
func (r *Raster) Pad(width, height int) *Raster {
	if width == r.Width && height == r.Height {
		return r
	}
	out := NewRaster(width, height)
	out.CopyRect(r, r.Bounds(), 0, 0)
	return out
}

// Equal reports whether two rasters have the same shape and samples.
func (r *Raster) Equal(other *Raster) bool {
	if r.Width != other.Width || r.Height != other.Height || len(r.Pix) != len(other.Pix) {
		return false
	}
	for i := range r.Pix {
		if r.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// ToImage converts the raster to an opaque *image.NRGBA.
func (r *Raster) ToImage() *image.NRGBA {
	img := image.NewNRGBA(r.Bounds())
	for y := 0; y < r.Height; y++ {
		src := r.Pix[y*r.Stride() : (y+1)*r.Stride()]
		dst := img.Pix[y*img.Stride : y*img.Stride+r.Width*4]
		for x := 0; x < r.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// FromImage converts any image to a raster. Alpha is composited over white,
// which is how slide scanners render empty glass.
func FromImage(img image.Image) *Raster {
	return FromImageRect(img, img.Bounds())
}

// FromImageRect converts the rect part of img, given in img's coordinates.
func FromImageRect(img image.Image, rect image.Rectangle) *Raster {
	flat := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, rect.Min, draw.Over)

	out := NewRaster(rect.Dx(), rect.Dy())
	for y := 0; y < out.Height; y++ {
		src := flat.Pix[y*flat.Stride:]
		dst := out.Pix[y*out.Stride():]
		for x := 0; x < out.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out
}
