package slide

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/pyramid"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// Writer is a write-mode session. It accepts level-0 pixels and builds the
// pyramid when closed.
//
// A Writer is not safe for concurrent WriteImagePart calls that target the
// same tiles; distinct tiles may be written from several goroutines.
type Writer struct {
	session
	geom    tilestore.Geometry
	edge    tilestore.EdgePolicy
	builder *pyramid.Builder
}

// Create makes a new slide file of height x width pixels and returns a
// writer session for it. The path must not already exist. Only one writer
// may hold a path at a time; that is the caller's responsibility.
func Create(path string, height, width, tileSize int, opts ...Option) (*Writer, error) {
	set, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		session: session{path: path, logger: set.logger},
		geom:    tilestore.Geometry{Width: width, Height: height, TileSize: tileSize},
		edge:    set.edge,
	}
	w.state.Store(int32(StateOpening))

	store, err := tilestore.Create(path, w.geom, set.storeOptions()...)
	if err != nil {
		w.state.Store(int32(StateClosed))
		return nil, err
	}
	builder, err := pyramid.NewBuilder(store, set.pyramidOptions()...)
	if err != nil {
		w.state.Store(int32(StateClosed))
		return nil, errors.Join(err, store.Close(), removeFile(path))
	}

	w.store = store
	w.builder = builder
	w.state.Store(int32(StateWriteOnly))
	return w, nil
}

// Geometry returns the image and tile dimensions.
func (w *Writer) Geometry() tilestore.Geometry {
	return w.geom
}

// WriteImagePart stores a block of level-0 pixels with its top-left corner at
// (x, y). The origin must sit on the tile grid, and the block must cover whole
// tiles except where it ends at the right or bottom edge of the image.
//
// Tiles are stored in row-major order. If one fails, the tiles before it stay
// written.
func (w *Writer) WriteImagePart(x, y int, block *imaging.Raster) error {
	const op = "write image part"
	if err := w.require(op, StateWriteOnly); err != nil {
		return err
	}
	if block == nil || block.Width <= 0 || block.Height <= 0 {
		return slideerr.Invalid(op, "empty block")
	}
	if len(block.Pix) != block.Width*block.Height*imaging.Channels {
		return slideerr.Invalid(op, "block %dx%d has %d bytes", block.Width, block.Height, len(block.Pix))
	}

	ts := w.geom.TileSize
	if x%ts != 0 || y%ts != 0 {
		return slideerr.New(op, slideerr.ErrMisalignedWrite, "origin (%d,%d) is not a multiple of tile size %d", x, y, ts)
	}
	if x < 0 || y < 0 || x+block.Width > w.geom.Width || y+block.Height > w.geom.Height {
		return slideerr.New(op, slideerr.ErrOutOfBounds, "block (%d,%d)+%dx%d outside %dx%d image",
			x, y, block.Width, block.Height, w.geom.Width, w.geom.Height)
	}
	if block.Width%ts != 0 && x+block.Width != w.geom.Width {
		return slideerr.New(op, slideerr.ErrMisalignedWrite, "block width %d is not whole tiles", block.Width)
	}
	if block.Height%ts != 0 && y+block.Height != w.geom.Height {
		return slideerr.New(op, slideerr.ErrMisalignedWrite, "block height %d is not whole tiles", block.Height)
	}

	for by := 0; by < block.Height; by += ts {
		for bx := 0; bx < block.Width; bx += ts {
			rect := image.Rect(bx, by, min(bx+ts, block.Width), min(by+ts, block.Height))
			tile := block.Crop(rect)
			if w.edge == tilestore.EdgePad {
				tile = tile.Pad(ts, ts)
			}
			if err := w.store.Put(0, (y+by)/ts, (x+bx)/ts, tile.Pix); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTile stores one level-0 tile given as raw interleaved RGB samples.
// Edge tiles are clipped or padded according to the edge policy.
func (w *Writer) WriteTile(row, col int, data []byte) error {
	if err := w.require("write tile", StateWriteOnly); err != nil {
		return err
	}
	return w.store.Put(0, row, col, data)
}

// Missing lists the level-0 tiles not yet written.
func (w *Writer) Missing() ([]tilestore.TileCoord, error) {
	if err := w.require("missing", StateWriteOnly); err != nil {
		return nil, err
	}
	return w.store.Missing(0)
}

// Read always fails: nothing is readable until the writer is closed and the
// file reopened.
func (w *Writer) Read(level, x, y, width, height int) (*imaging.Raster, error) {
	if err := w.require("read", StateWriteOnly); err != nil {
		return nil, err
	}
	return nil, slideerr.New("read", slideerr.ErrLevelNotReady, "%s is open for writing", w.path)
}

// Close flushes pending tiles, builds the pyramid, finalizes the file and
// releases the handle. The handle is released even when building fails.
// A second Close returns ErrSessionClosed.
func (w *Writer) Close() error {
	if err := w.leave("close", StateWriteOnly); err != nil {
		return err
	}

	err := w.finish()
	if closeErr := w.store.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		w.logger.Error("slide not finalized", "path", w.path, "error", err)
		return err
	}
	w.logger.Info("slide written", "path", w.path)
	return nil
}

func (w *Writer) finish() error {
	if err := w.store.Flush(); err != nil {
		return err
	}
	if _, err := w.builder.BuildAll(); err != nil {
		return err
	}
	if err := w.store.Finalize(); err != nil {
		return fmt.Errorf("finalize %s: %w", w.path, err)
	}
	return nil
}

// Abort releases the handle without building the pyramid. The file is left
// in a state Open rejects.
func (w *Writer) Abort() error {
	if err := w.leave("abort", StateWriteOnly); err != nil {
		return err
	}
	w.logger.Warn("slide write aborted", "path", w.path)
	return w.store.Close()
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
