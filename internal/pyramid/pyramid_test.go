package pyramid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/reader"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

func checkerboard(width, height, cell int) *imaging.Raster {
	r := imaging.NewRaster(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/cell+y/cell)%2 == 0 {
				r.Set(x, y, 255, 255, 255)
			}
		}
	}
	return r
}

func noise(width, height int) *imaging.Raster {
	r := imaging.NewRaster(width, height)
	state := uint32(2463534242)
	for i := range r.Pix {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		r.Pix[i] = byte(state)
	}
	return r
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name                     string
		w, h, ts, factor, levels int
		want                     []int
	}{
		{"fits one tile", 200, 100, 256, 2, 0, []int{1}},
		{"two halvings", 1000, 600, 256, 2, 0, []int{1, 2, 4}},
		{"exact fit", 1024, 512, 256, 2, 0, []int{1, 2, 4}},
		{"factor 4", 5000, 5000, 256, 4, 0, []int{1, 4, 16, 64}},
		{"capped", 100000, 80000, 256, 2, 3, []int{1, 2, 4}},
		{"cap of one", 100000, 80000, 256, 2, 1, []int{1}},
		{"tall", 100, 3000, 512, 2, 0, []int{1, 2, 4, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.w, tt.h, tt.ts, tt.factor, tt.levels))
		})
	}
}

func TestDownsample_Checkerboard(t *testing.T) {
	src := checkerboard(8, 8, 1)

	out := Downsample(src, 2)

	require.Equal(t, 4, out.Width)
	require.Equal(t, 4, out.Height)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b := out.At(x, y)
			// two white, two black: (510 + 2) / 4
			assert.Equal(t, []uint8{128, 128, 128}, []uint8{r, g, b}, "(%d,%d)", x, y)
		}
	}

	// Cells as large as the factor survive unchanged
	coarse := Downsample(checkerboard(8, 8, 2), 2)
	assert.True(t, coarse.Equal(checkerboard(4, 4, 1)))
}

func TestDownsample_PartialEdgeBlocks(t *testing.T) {
	src := imaging.NewRaster(3, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			v := uint8(10 * (y*3 + x))
			src.Set(x, y, v, v, v)
		}
	}

	out := Downsample(src, 2)

	require.Equal(t, 2, out.Width)
	require.Equal(t, 2, out.Height)
	r, _, _ := out.At(0, 0)
	assert.Equal(t, uint8(20), r) // (0+10+30+40)/4
	r, _, _ = out.At(1, 0)
	assert.Equal(t, uint8(35), r) // (20+50)/2
	r, _, _ = out.At(0, 1)
	assert.Equal(t, uint8(65), r) // (60+70)/2
	r, _, _ = out.At(1, 1)
	assert.Equal(t, uint8(80), r) // lone corner pixel
}

func TestDownsample_RoundsHalfUp(t *testing.T) {
	src := imaging.NewRaster(2, 1)
	src.Set(0, 0, 1, 0, 0)
	src.Set(1, 0, 2, 0, 0)

	r, _, _ := Downsample(src, 2).At(0, 0)
	assert.Equal(t, uint8(2), r) // 1.5 rounds up
}

func TestDownsample_FactorOneCopies(t *testing.T) {
	src := noise(5, 4)
	out := Downsample(src, 1)
	assert.True(t, out.Equal(src))
	out.Pix[0]++
	assert.False(t, out.Equal(src))
}

// writeBase creates a store holding full as level 0, tiles not yet committed.
func writeBase(t *testing.T, full *imaging.Raster, tileSize int, opts ...tilestore.Option) *tilestore.Store {
	t.Helper()
	geom := tilestore.Geometry{Width: full.Width, Height: full.Height, TileSize: tileSize}
	s, err := tilestore.Create(filepath.Join(t.TempDir(), "p.slide"), geom, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lvl, err := s.Level(0)
	require.NoError(t, err)
	for row := 0; row < lvl.Rows; row++ {
		for col := 0; col < lvl.Cols; col++ {
			tile := full.Crop(lvl.TileRect(row, col))
			if s.EdgePolicy() == tilestore.EdgePad {
				tile = tile.Pad(tileSize, tileSize)
			}
			require.NoError(t, s.Put(0, row, col, tile.Pix))
		}
	}
	return s
}

func readLevel(t *testing.T, s *tilestore.Store, level int) *imaging.Raster {
	t.Helper()
	lvl, err := s.Level(level)
	require.NoError(t, err)
	out, err := reader.New(s).Read(level, 0, 0, lvl.Width, lvl.Height)
	require.NoError(t, err)
	return out
}

func TestBuildAll(t *testing.T) {
	for _, policy := range []tilestore.EdgePolicy{tilestore.EdgeClip, tilestore.EdgePad} {
		t.Run(policy.String(), func(t *testing.T) {
			full := noise(150, 90)
			s := writeBase(t, full, 16, tilestore.WithEdgePolicy(policy))

			b, err := NewBuilder(s, WithWorkers(3))
			require.NoError(t, err)
			levels, err := b.BuildAll()
			require.NoError(t, err)

			require.Len(t, levels, 5)
			assert.Equal(t, []int{1, 2, 4, 8, 16}, b.Scales())
			assert.Equal(t, 10, levels[4].Width)
			assert.Equal(t, 6, levels[4].Height)

			// Every level is the box average of the one before it.
			want := full
			for i := 1; i < len(levels); i++ {
				want = Downsample(want, 2)
				assert.True(t, readLevel(t, s, i).Equal(want), "level %d", i)
				assert.True(t, s.Committed(i))
			}
		})
	}
}

func TestBuildAll_CheckerboardLevels(t *testing.T) {
	s := writeBase(t, checkerboard(64, 64, 1), 16)

	b, err := NewBuilder(s)
	require.NoError(t, err)
	_, err = b.BuildAll()
	require.NoError(t, err)

	// Once the checker is averaged out, every coarser level stays flat grey.
	for level := 1; level < len(s.Levels()); level++ {
		lvl := readLevel(t, s, level)
		for i, v := range lvl.Pix {
			if !assert.Equal(t, uint8(128), v, "level %d sample %d", level, i) {
				break
			}
		}
	}
}

func TestBuildAll_DeterministicAcrossWorkers(t *testing.T) {
	full := noise(200, 130)

	var levels [][]*imaging.Raster
	for _, workers := range []int{1, 7} {
		s := writeBase(t, full, 32)
		b, err := NewBuilder(s, WithWorkers(workers))
		require.NoError(t, err)
		built, err := b.BuildAll()
		require.NoError(t, err)

		var rasters []*imaging.Raster
		for _, lvl := range built {
			rasters = append(rasters, readLevel(t, s, lvl.Index))
		}
		levels = append(levels, rasters)
	}

	require.Equal(t, len(levels[0]), len(levels[1]))
	for i := range levels[0] {
		assert.True(t, levels[0][i].Equal(levels[1][i]), "level %d differs", i)
	}
}

func TestBuildAll_Factor3AndCap(t *testing.T) {
	full := noise(300, 200)
	s := writeBase(t, full, 16)

	b, err := NewBuilder(s, WithFactor(3), WithMaxLevels(3))
	require.NoError(t, err)
	levels, err := b.BuildAll()
	require.NoError(t, err)

	require.Len(t, levels, 3)
	assert.Equal(t, 9, levels[2].Downsample)
	assert.True(t, readLevel(t, s, 2).Equal(Downsample(Downsample(full, 3), 3)))
}

func TestBuildAll_IncompleteBase(t *testing.T) {
	geom := tilestore.Geometry{Width: 64, Height: 64, TileSize: 32}
	s, err := tilestore.Create(filepath.Join(t.TempDir(), "p.slide"), geom)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(0, 0, 0, noise(32, 32).Pix))

	b, err := NewBuilder(s)
	require.NoError(t, err)
	_, err = b.BuildAll()

	assert.ErrorIs(t, err, slideerr.ErrIncompleteBaseImage)
	assert.False(t, s.Committed(0))
	assert.Len(t, s.Levels(), 1)
}

func TestBuildAll_SingleTileImage(t *testing.T) {
	s := writeBase(t, noise(20, 12), 32)

	b, err := NewBuilder(s)
	require.NoError(t, err)
	levels, err := b.BuildAll()
	require.NoError(t, err)
	assert.Len(t, levels, 1)
	assert.True(t, s.Committed(0))
}

func TestNewBuilder_Options(t *testing.T) {
	s := writeBase(t, noise(16, 16), 16)

	_, err := NewBuilder(s, WithFactor(1))
	assert.True(t, slideerr.IsValidation(err))

	_, err = NewBuilder(s, WithMaxLevels(-1))
	assert.True(t, slideerr.IsValidation(err))
}
