package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// TileGrid draws tile boundaries over a copy of r. The raster is taken to
// start at (originX, originY) of a level whose tiles are tileSize wide, so
// lines fall where the stored tiles meet. With showCoordinates each tile
// that starts inside the raster is labelled "row,col".
//
// The color is "#RRGGBB" or "#RRGGBBAA"; an invalid or empty string falls
// back to semi-transparent red.
func TileGrid(r *Raster, tileSize, originX, originY int, showCoordinates bool, gridColorHex string) (*Raster, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", tileSize)
	}

	gridColor, err := parseHexColor(gridColorHex)
	if err != nil {
		gridColor = color.RGBA{255, 0, 0, 128} // Default: semi-transparent red
	}

	result := image.NewRGBA(r.Bounds())
	draw.Draw(result, result.Bounds(), r.ToImage(), image.Point{}, draw.Src)
	line := image.NewUniform(color.NRGBA(gridColor))

	// First boundary at or after the origin, in raster coordinates
	firstX := (tileSize - originX%tileSize) % tileSize
	firstY := (tileSize - originY%tileSize) % tileSize

	for x := firstX; x < r.Width; x += tileSize {
		draw.Draw(result, image.Rect(x, 0, x+1, r.Height), line, image.Point{}, draw.Over)
	}
	for y := firstY; y < r.Height; y += tileSize {
		draw.Draw(result, image.Rect(0, y, r.Width, y+1), line, image.Point{}, draw.Over)
	}

	if showCoordinates {
		labelColor := color.RGBA{255, 255, 255, 255}
		bgColor := color.RGBA{0, 0, 0, 180}

		for y := firstY; y < r.Height; y += tileSize {
			for x := firstX; x < r.Width; x += tileSize {
				label := fmt.Sprintf("%d,%d", (originY+y)/tileSize, (originX+x)/tileSize)
				drawLabel(result, x+2, y+2, label, labelColor, bgColor)
			}
		}
	}

	return FromImage(result), nil
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA"; the leading '#' is optional.
func parseHexColor(hex string) (color.RGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}

	c, err := colorful.Hex("#" + hex[:6])
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	alpha := uint64(255)
	if len(hex) == 8 {
		if alpha, err = strconv.ParseUint(hex[6:], 16, 8); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in %q: %w", hex, err)
		}
	}

	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: uint8(alpha)}, nil
}

// glyphs is a 3x5 font; each row holds three bits, most significant on the left.
var glyphs = map[rune][5]uint8{
	'0': {7, 5, 5, 5, 7},
	'1': {2, 6, 2, 2, 7},
	'2': {7, 1, 7, 4, 7},
	'3': {7, 1, 7, 1, 7},
	'4': {5, 5, 7, 1, 1},
	'5': {7, 4, 7, 1, 7},
	'6': {7, 4, 7, 5, 7},
	'7': {7, 1, 1, 1, 1},
	'8': {7, 5, 7, 5, 7},
	'9': {7, 5, 7, 1, 7},
	',': {0, 0, 0, 2, 2},
}

const (
	glyphAdvance = 4
	labelHeight  = 7
)

// drawLabel draws text on a filled box. Characters without a glyph leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	box := image.Rect(x-1, y-1, x+len(text)*glyphAdvance, y+labelHeight)
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	bounds := img.Bounds()
	for i, ch := range []rune(text) {
		glyph, ok := glyphs[ch]
		if !ok {
			continue
		}
		left := x + i*glyphAdvance
		for row, bits := range glyph {
			for col := 0; col < 3; col++ {
				if bits&(4>>col) == 0 {
					continue
				}
				if p := image.Pt(left+col, y+row); p.In(bounds) {
					img.SetRGBA(p.X, p.Y, fg)
				}
			}
		}
	}
}
