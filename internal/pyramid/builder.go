// Package pyramid derives the reduced-resolution levels of a slide from its
// fully written base level.
//
// Each level is a box-downsampled copy of the previous one by an integer
// factor (2 by default). Levels are added until one fits in a single tile or
// the configured level cap is reached. Output is deterministic: the same base
// tiles and factor always produce bit-identical pyramids, regardless of the
// worker count.
package pyramid

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/slide-tools-mcp/internal/reader"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// DefaultFactor is the downsample ratio between consecutive levels.
const DefaultFactor = 2

// Plan returns the downsample factor of every level for an image of the given
// size. The first entry is always 1. maxLevels of 0 means no cap.
func Plan(width, height, tileSize, factor, maxLevels int) []int {
	scales := []int{1}
	ds := 1
	for {
		w, h := ceilDiv(width, ds), ceilDiv(height, ds)
		if w <= tileSize && h <= tileSize {
			break
		}
		if maxLevels > 0 && len(scales) >= maxLevels {
			break
		}
		ds *= factor
		scales = append(scales, ds)
	}
	return scales
}

// Builder writes every derived level of a store.
type Builder struct {
	store     *tilestore.Store
	factor    int
	maxLevels int
	workers   int
	logger    tilestore.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithFactor sets the ratio between consecutive levels (>= 2).
func WithFactor(factor int) Option {
	return func(b *Builder) error {
		if factor < 2 {
			return slideerr.Invalid("pyramid", "scale factor must be at least 2, got %d", factor)
		}
		b.factor = factor
		return nil
	}
}

// WithMaxLevels caps the level count, base level included. 0 means no cap.
func WithMaxLevels(n int) Option {
	return func(b *Builder) error {
		if n < 0 {
			return slideerr.Invalid("pyramid", "max levels must not be negative, got %d", n)
		}
		b.maxLevels = n
		return nil
	}
}

// WithWorkers sets how many tiles of one level are computed in parallel.
func WithWorkers(n int) Option {
	return func(b *Builder) error {
		if n > 0 {
			b.workers = n
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger tilestore.Logger) Option {
	return func(b *Builder) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// NewBuilder returns a Builder for a writable store.
func NewBuilder(store *tilestore.Store, opts ...Option) (*Builder, error) {
	b := &Builder{
		store:   store,
		factor:  DefaultFactor,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Scales returns the planned downsample factors for the store.
func (b *Builder) Scales() []int {
	g := b.store.Geometry()
	return Plan(g.Width, g.Height, g.TileSize, b.factor, b.maxLevels)
}

// BuildAll commits level 0 and then builds and commits every planned level in
// order. If level 0 has missing tiles it fails with ErrIncompleteBaseImage and
// commits nothing.
func (b *Builder) BuildAll() ([]tilestore.Level, error) {
	if missing, err := b.store.Missing(0); err != nil {
		return nil, err
	} else if len(missing) > 0 {
		b.logger.Warn("base level incomplete", "missing", len(missing), "first", missing[0].String())
		return nil, slideerr.New("build", slideerr.ErrIncompleteBaseImage,
			"%d base tiles missing, first %s", len(missing), missing[0])
	}
	if err := b.store.CommitLevel(0); err != nil {
		return nil, err
	}

	if declared := len(b.store.Levels()); declared > 1 {
		return nil, fmt.Errorf("build: pyramid already has %d levels", declared)
	}

	scales := b.Scales()
	rd := reader.New(b.store)
	for i := 1; i < len(scales); i++ {
		lvl, err := b.store.AddLevel(scales[i])
		if err != nil {
			return nil, err
		}
		if err := b.buildLevel(rd, lvl, scales[i]/scales[i-1]); err != nil {
			return nil, fmt.Errorf("build level %d: %w", i, err)
		}
		if err := b.store.CommitLevel(i); err != nil {
			return nil, err
		}
	}

	b.logger.Info("pyramid built", "levels", len(scales), "factor", b.factor)
	return b.store.Levels(), nil
}

func (b *Builder) buildLevel(rd *reader.Reader, lvl tilestore.Level, ratio int) error {
	prev, err := b.store.Level(lvl.Index - 1)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(b.workers)
	for row := 0; row < lvl.Rows; row++ {
		for col := 0; col < lvl.Cols; col++ {
			g.Go(func() error {
				return b.buildTile(rd, prev, lvl, ratio, row, col)
			})
		}
	}
	return g.Wait()
}

// buildTile computes one output tile from the matching block of the previous
// level. Source blocks start on multiples of ratio, so tile-by-tile output is
// identical to downsampling the whole previous level at once.
func (b *Builder) buildTile(rd *reader.Reader, prev, lvl tilestore.Level, ratio, row, col int) error {
	out := lvl.TileRect(row, col)
	src := image.Rect(
		out.Min.X*ratio, out.Min.Y*ratio,
		min(out.Max.X*ratio, prev.Width), min(out.Max.Y*ratio, prev.Height),
	)

	block, err := rd.Read(prev.Index, src.Min.X, src.Min.Y, src.Dx(), src.Dy())
	if err != nil {
		return err
	}
	tile := Downsample(block, ratio)
	if b.store.EdgePolicy() == tilestore.EdgePad {
		tile = tile.Pad(lvl.TileSize, lvl.TileSize)
	}
	return b.store.Put(lvl.Index, row, col, tile.Pix)
}
