package slide

import (
	"errors"
	"slices"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/reader"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// Reader is a read-only session over a finalized slide. Every method except
// Close may be called from any number of goroutines.
type Reader struct {
	session
	rd     *reader.Reader
	levels []tilestore.Level
}

// Open binds a read session to the slide at path. It fails with
// ErrFileNotFound when the path does not exist, ErrUnreadableFormat when the
// file is not a slide, and ErrLevelNotReady when the slide was never
// finalized.
func Open(path string, opts ...Option) (*Reader, error) {
	set, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	r := &Reader{session: session{path: path, logger: set.logger}}
	r.state.Store(int32(StateOpening))

	store, err := tilestore.Open(path, set.storeOptions()...)
	if err != nil {
		r.state.Store(int32(StateClosed))
		return nil, err
	}
	r.store = store
	r.rd = reader.New(store)
	r.levels = store.Levels()
	r.state.Store(int32(StateReadOnly))
	return r, nil
}

// ID returns the identifier written into the slide at creation.
func (r *Reader) ID() string {
	return r.store.ID().String()
}

// Dimensions returns the level-0 shape as (height, width, channels).
func (r *Reader) Dimensions() (int, int, int) {
	g := r.store.Geometry()
	return g.Height, g.Width, tilestore.Channels
}

// TileSize returns the edge length of a full tile.
func (r *Reader) TileSize() int {
	return r.store.Geometry().TileSize
}

// EdgePolicy returns how edge tiles were stored.
func (r *Reader) EdgePolicy() tilestore.EdgePolicy {
	return r.store.EdgePolicy()
}

// LevelCount returns the number of pyramid levels.
func (r *Reader) LevelCount() int {
	return len(r.levels)
}

// Levels returns every level in order, finest first.
func (r *Reader) Levels() []tilestore.Level {
	return slices.Clone(r.levels)
}

// DownsampleFactor returns the ratio between level-0 and level resolution.
func (r *Reader) DownsampleFactor(level int) (int, error) {
	lvl, err := r.level("downsample factor", level)
	if err != nil {
		return 0, err
	}
	return lvl.Downsample, nil
}

// LevelDimensions returns the pixel size of a level as (width, height).
func (r *Reader) LevelDimensions(level int) (int, int, error) {
	lvl, err := r.level("level dimensions", level)
	if err != nil {
		return 0, 0, err
	}
	return lvl.Width, lvl.Height, nil
}

// Scales returns the downsample factor of every level.
func (r *Reader) Scales() []int {
	out := make([]int, len(r.levels))
	for i, lvl := range r.levels {
		out[i] = lvl.Downsample
	}
	return out
}

func (r *Reader) level(op string, index int) (tilestore.Level, error) {
	if index < 0 || index >= len(r.levels) {
		return tilestore.Level{}, slideerr.New(op, slideerr.ErrOutOfBounds, "level %d not in [0,%d)", index, len(r.levels))
	}
	return r.levels[index], nil
}

// Read returns the width x height region at level-local (x, y) as a raster
// of exactly height*width*3 bytes.
func (r *Reader) Read(level, x, y, width, height int) (*imaging.Raster, error) {
	if err := r.require("read", StateReadOnly); err != nil {
		return nil, err
	}
	if _, err := r.level("read", level); err != nil {
		return nil, err
	}
	return r.rd.Read(level, x, y, width, height)
}

// ReadInto fills dst with the region of dst's size at level-local (x, y).
func (r *Reader) ReadInto(dst *imaging.Raster, level, x, y int) error {
	if err := r.require("read", StateReadOnly); err != nil {
		return err
	}
	if _, err := r.level("read", level); err != nil {
		return err
	}
	return r.rd.ReadInto(dst, level, x, y)
}

// Window selects a level-0 region and a sampling step per axis. A zero X1
// or Y1 extends to the image edge and a zero step means 1. Both steps must be
// downsample factors of the slide; the read uses the larger one.
type Window struct {
	X0, Y0       int
	X1, Y1       int
	StepY, StepX int
}

// Slice reads a window expressed in level-0 coordinates from the level whose
// downsample factor equals the larger of the two steps.
func (r *Reader) Slice(win Window) (*imaging.Raster, error) {
	const op = "slice"
	if err := r.require(op, StateReadOnly); err != nil {
		return nil, err
	}

	h, w, _ := r.Dimensions()
	if win.X1 == 0 {
		win.X1 = w
	}
	if win.Y1 == 0 {
		win.Y1 = h
	}
	if win.StepY == 0 {
		win.StepY = 1
	}
	if win.StepX == 0 {
		win.StepX = 1
	}

	scales := r.Scales()
	if !slices.Contains(scales, win.StepY) || !slices.Contains(scales, win.StepX) {
		return nil, slideerr.Invalid(op, "steps %d and %d must both be in %v", win.StepY, win.StepX, scales)
	}
	if win.X0 < 0 || win.Y0 < 0 || win.X1 > w || win.Y1 > h || win.X0 >= win.X1 || win.Y0 >= win.Y1 {
		return nil, slideerr.New(op, slideerr.ErrOutOfBounds, "window [%d:%d, %d:%d] outside %dx%d image",
			win.Y0, win.Y1, win.X0, win.X1, h, w)
	}

	step := max(win.StepY, win.StepX)
	level := slices.Index(scales, step)
	width := (win.X1 - win.X0) / step
	height := (win.Y1 - win.Y0) / step
	if width == 0 || height == 0 {
		return nil, slideerr.New(op, slideerr.ErrOutOfBounds, "window narrower than step %d", step)
	}
	return r.rd.Read(level, win.X0/step, win.Y0/step, width, height)
}

// Thumbnail returns the whole slide scaled to fit in maxSize x maxSize. It
// reads the coarsest level that is still at least maxSize on its long side.
func (r *Reader) Thumbnail(maxSize int) (*imaging.Raster, error) {
	const op = "thumbnail"
	if err := r.require(op, StateReadOnly); err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, slideerr.Invalid(op, "size must be positive, got %d", maxSize)
	}

	pick := r.levels[0]
	for _, lvl := range r.levels[1:] {
		if max(lvl.Width, lvl.Height) < maxSize {
			break
		}
		pick = lvl
	}

	full, err := r.rd.Read(pick.Index, 0, 0, pick.Width, pick.Height)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("thumbnail", "path", r.path, "level", pick.Index, "size", maxSize)
	return imaging.Fit(full, maxSize), nil
}

// VerifyReport summarizes a full checksum pass.
type VerifyReport struct {
	Tiles   int                   `json:"tiles"`
	Corrupt []tilestore.TileCoord `json:"corrupt,omitempty"`
}

// OK reports whether every tile verified.
func (v *VerifyReport) OK() bool {
	return len(v.Corrupt) == 0
}

// Verify reads every tile of every level and checks its checksum. Corrupt
// tiles are collected in the report; any other failure aborts the pass.
func (r *Reader) Verify() (*VerifyReport, error) {
	if err := r.require("verify", StateReadOnly); err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	for _, lvl := range r.levels {
		for row := 0; row < lvl.Rows; row++ {
			for col := 0; col < lvl.Cols; col++ {
				report.Tiles++
				err := r.store.VerifyTile(lvl.Index, row, col)
				switch {
				case err == nil:
				case errors.Is(err, slideerr.ErrChecksumMismatch), errors.Is(err, slideerr.ErrUnreadableFormat):
					report.Corrupt = append(report.Corrupt, tilestore.TileCoord{Level: lvl.Index, Row: row, Col: col})
				default:
					return nil, err
				}
			}
		}
	}
	if !report.OK() {
		r.logger.Warn("slide verification failed", "path", r.path, "corrupt", len(report.Corrupt), "tiles", report.Tiles)
	}
	return report, nil
}

// Close releases the file handle. A second Close returns ErrSessionClosed.
func (r *Reader) Close() error {
	if err := r.leave("close", StateReadOnly); err != nil {
		return err
	}
	return r.store.Close()
}
