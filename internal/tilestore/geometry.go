package tilestore

import (
	"fmt"
	"image"

	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
)

// Channels is the fixed sample count per pixel (8-bit RGB).
const Channels = 3

const (
	// MinTileSize and MaxTileSize bound the configurable tile edge.
	MinTileSize = 16
	MaxTileSize = 8192

	// MaxDimension bounds image width and height.
	MaxDimension = 1<<31 - 1
)

// Geometry is the create-time description of a slide. It never changes.
type Geometry struct {
	Width    int
	Height   int
	TileSize int
}

// Validate checks dimensions and tile size.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return slideerr.Invalid("create", "dimensions must be positive, got %dx%d", g.Width, g.Height)
	}
	if g.Width > MaxDimension || g.Height > MaxDimension {
		return slideerr.Invalid("create", "dimensions %dx%d exceed %d", g.Width, g.Height, MaxDimension)
	}
	if g.TileSize < MinTileSize || g.TileSize > MaxTileSize || g.TileSize%16 != 0 {
		return slideerr.Invalid("create", "tile size %d must be a multiple of 16 in [%d, %d]",
			g.TileSize, MinTileSize, MaxTileSize)
	}
	return nil
}

// EdgePolicy decides how tiles on the right and bottom image edges are stored.
type EdgePolicy uint8

const (
	// EdgeClip stores edge tiles at their clipped size.
	EdgeClip EdgePolicy = iota
	// EdgePad stores every tile at the full tile size, zero-filling past the image edge.
	EdgePad
)

func (p EdgePolicy) String() string {
	switch p {
	case EdgeClip:
		return "clip"
	case EdgePad:
		return "pad"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// ParseEdgePolicy parses "clip" or "pad".
func ParseEdgePolicy(name string) (EdgePolicy, error) {
	switch name {
	case "clip", "":
		return EdgeClip, nil
	case "pad":
		return EdgePad, nil
	default:
		return 0, fmt.Errorf("unknown edge policy %q", name)
	}
}

// Level describes one resolution layer.
type Level struct {
	Index      int
	Downsample int
	Width      int
	Height     int
	Rows       int
	Cols       int
	TileSize   int
}

// NewLevel computes the dimensions of a level at the given downsample factor.
func NewLevel(g Geometry, index, downsample int) Level {
	w := ceilDiv(g.Width, downsample)
	h := ceilDiv(g.Height, downsample)
	return Level{
		Index:      index,
		Downsample: downsample,
		Width:      w,
		Height:     h,
		Rows:       ceilDiv(h, g.TileSize),
		Cols:       ceilDiv(w, g.TileSize),
		TileSize:   g.TileSize,
	}
}

// TileCount is the number of tiles in the level grid.
func (l Level) TileCount() int {
	return l.Rows * l.Cols
}

// Contains reports whether (row, col) lies in the grid.
func (l Level) Contains(row, col int) bool {
	return row >= 0 && row < l.Rows && col >= 0 && col < l.Cols
}

// TileRect returns the level-local pixel rectangle covered by a tile, clipped to the level.
func (l Level) TileRect(row, col int) image.Rectangle {
	x0 := col * l.TileSize
	y0 := row * l.TileSize
	return image.Rect(x0, y0, min(x0+l.TileSize, l.Width), min(y0+l.TileSize, l.Height))
}

// StoredSize returns the width and height of the stored tile under policy.
func (l Level) StoredSize(row, col int, policy EdgePolicy) (int, int) {
	if policy == EdgePad {
		return l.TileSize, l.TileSize
	}
	r := l.TileRect(row, col)
	return r.Dx(), r.Dy()
}

// TileBytes is the expected payload length for a tile under policy.
func (l Level) TileBytes(row, col int, policy EdgePolicy) int {
	w, h := l.StoredSize(row, col, policy)
	return w * h * Channels
}

// FitsOneTile reports whether the level is covered by a single tile.
func (l Level) FitsOneTile() bool {
	return l.Width <= l.TileSize && l.Height <= l.TileSize
}

// TileCoord addresses one tile of one level.
type TileCoord struct {
	Level int `json:"level"`
	Row   int `json:"row"`
	Col   int `json:"col"`
}

func (c TileCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.Level, c.Row, c.Col)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
