// Package reader serves rectangular reads from a tiled pyramid.
//
// A read is a pure crop and stitch: the requested level-local rectangle is
// projected onto the tile grid, each intersecting tile is fetched once, and
// its overlapping sub-rectangle is copied into the output raster. Resampling
// never happens here; reduced levels are produced once, at build time.
//
// Reader holds no mutable state. Against a finalized (read-only) store any
// number of goroutines may call Read concurrently.
package reader

import (
	"image"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// TileSource is the part of the tile store a Reader needs.
type TileSource interface {
	Get(level, row, col int) ([]byte, error)
	Level(index int) (tilestore.Level, error)
	EdgePolicy() tilestore.EdgePolicy
}

// Reader stitches tiles from a TileSource into rasters.
type Reader struct {
	src TileSource
}

// New returns a Reader over src.
func New(src TileSource) *Reader {
	return &Reader{src: src}
}

// Projection maps one tile onto an output raster.
type Projection struct {
	Row int
	Col int
	// TileRect is the tile-local rectangle to copy.
	TileRect image.Rectangle
	// Out is where TileRect's top-left corner lands in the output.
	Out image.Point
}

// Plan lists the tiles that intersect rect, row-major, with the tile-local
// rectangle each contributes. rect must lie inside the level.
func Plan(lvl tilestore.Level, rect image.Rectangle) []Projection {
	ts := lvl.TileSize
	row0, row1 := rect.Min.Y/ts, (rect.Max.Y-1)/ts
	col0, col1 := rect.Min.X/ts, (rect.Max.X-1)/ts

	out := make([]Projection, 0, (row1-row0+1)*(col1-col0+1))
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			tile := lvl.TileRect(row, col)
			overlap := tile.Intersect(rect)
			out = append(out, Projection{
				Row:      row,
				Col:      col,
				TileRect: overlap.Sub(tile.Min),
				Out:      overlap.Min.Sub(rect.Min),
			})
		}
	}
	return out
}

// Read returns the h x w region at level-local (x, y).
func (r *Reader) Read(level, x, y, w, h int) (*imaging.Raster, error) {
	if _, err := r.region(level, x, y, w, h); err != nil {
		return nil, err
	}
	dst := imaging.NewRaster(w, h)
	if err := r.ReadInto(dst, level, x, y); err != nil {
		return nil, err
	}
	return dst, nil
}

// region resolves level and checks that the rectangle lies inside it.
// Comparisons subtract from the level size so huge extents cannot overflow.
func (r *Reader) region(level, x, y, w, h int) (tilestore.Level, error) {
	lvl, err := r.src.Level(level)
	if err != nil {
		return tilestore.Level{}, slideerr.Wrap("read", slideerr.ErrOutOfBounds, err, "level %d", level)
	}
	if w <= 0 || h <= 0 {
		return tilestore.Level{}, slideerr.New("read", slideerr.ErrOutOfBounds, "extent %dx%d must be positive", w, h)
	}
	if x < 0 || y < 0 || x >= lvl.Width || y >= lvl.Height || w > lvl.Width-x || h > lvl.Height-y {
		return tilestore.Level{}, slideerr.New("read", slideerr.ErrOutOfBounds,
			"region (%d,%d)+%dx%d outside level %d of %dx%d", x, y, w, h, level, lvl.Width, lvl.Height)
	}
	return lvl, nil
}

// ReadInto fills dst with the region of dst's size at level-local (x, y).
func (r *Reader) ReadInto(dst *imaging.Raster, level, x, y int) error {
	w, h := dst.Width, dst.Height
	lvl, err := r.region(level, x, y, w, h)
	if err != nil {
		return err
	}
	if len(dst.Pix) != w*h*imaging.Channels {
		return slideerr.Invalid("read", "destination buffer has %d bytes, want %d", len(dst.Pix), w*h*imaging.Channels)
	}

	policy := r.src.EdgePolicy()
	for _, p := range Plan(lvl, image.Rect(x, y, x+w, y+h)) {
		data, err := r.src.Get(level, p.Row, p.Col)
		if err != nil {
			return err
		}
		tw, th := lvl.StoredSize(p.Row, p.Col, policy)
		tile, err := imaging.RasterFromBytes(tw, th, data)
		if err != nil {
			return slideerr.Wrap("read", slideerr.ErrUnreadableFormat, err, "tile (%d,%d,%d)", level, p.Row, p.Col)
		}
		dst.CopyRect(tile, p.TileRect, p.Out.X, p.Out.Y)
	}
	return nil
}
