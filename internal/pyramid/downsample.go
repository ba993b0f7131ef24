package pyramid

import (
	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
)

// Downsample reduces src by factor in both axes. Output pixel (i, j) is the
// area average of the factor x factor block starting at (i*factor, j*factor),
// rounded half up. Blocks cut short by the right or bottom edge average only
// the pixels that exist; nothing wraps or extrapolates.
func Downsample(src *imaging.Raster, factor int) *imaging.Raster {
	if factor == 1 {
		out := imaging.NewRaster(src.Width, src.Height)
		copy(out.Pix, src.Pix)
		return out
	}

	w := ceilDiv(src.Width, factor)
	h := ceilDiv(src.Height, factor)
	out := imaging.NewRaster(w, h)
	stride := src.Stride()

	// Column sums for one output row, reused across rows.
	sums := make([]int, src.Width*imaging.Channels)

	for oy := 0; oy < h; oy++ {
		y0 := oy * factor
		y1 := min(y0+factor, src.Height)

		clear(sums)
		for y := y0; y < y1; y++ {
			row := src.Pix[y*stride : (y+1)*stride]
			for i, v := range row {
				sums[i] += int(v)
			}
		}

		for ox := 0; ox < w; ox++ {
			x0 := ox * factor
			x1 := min(x0+factor, src.Width)
			n := (y1 - y0) * (x1 - x0)

			var r, g, b int
			for x := x0; x < x1; x++ {
				r += sums[x*3]
				g += sums[x*3+1]
				b += sums[x*3+2]
			}
			i := (oy*w + ox) * imaging.Channels
			out.Pix[i] = uint8((r + n/2) / n)
			out.Pix[i+1] = uint8((g + n/2) / n)
			out.Pix[i+2] = uint8((b + n/2) / n)
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
