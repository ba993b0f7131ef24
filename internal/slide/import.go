package slide

import (
	"image"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
)

// Import writes img to a new slide at path, one strip of tile rows at a
// time, and finalizes it. On failure the partly written file is left in
// place and Open rejects it.
func Import(path string, img image.Image, tileSize int, opts ...Option) error {
	b := img.Bounds()
	return Build(path, b.Dy(), b.Dx(), tileSize, func(w *Writer) error {
		for y := 0; y < b.Dy(); y += tileSize {
			strip := image.Rect(b.Min.X, b.Min.Y+y, b.Max.X, min(b.Min.Y+y+tileSize, b.Max.Y))
			if err := w.WriteImagePart(0, y, imaging.FromImageRect(img, strip)); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}
