// Package slide is the session API of the tiled slide store.
//
// A slide is a very large RGB image kept as a grid of fixed-size tiles plus a
// pyramid of progressively downsampled levels. Sessions come in two kinds:
//
//   - Writer, from Create: accepts level-0 pixels with WriteImagePart or
//     WriteTile. Close builds the pyramid and finalizes the file; until then
//     nothing can be read back.
//   - Reader, from Open: serves rectangular reads at any level. Reads are
//     stitched from stored tiles and never resample.
//
// Every session moves through Closed -> Opening -> {ReadOnly | WriteOnly} ->
// Closed. Calling Close twice returns ErrSessionClosed. View and Build wrap
// Open and Create so the handle is released on every exit path.
//
// At most one Writer may hold a path at a time. This is not enforced; callers
// own the file. Readers of a finalized slide share no mutable state and may
// run in parallel.
//
// A process that exits before Writer.Close leaves a file Open rejects with
// ErrLevelNotReady.
package slide

import "github.com/ironsheep/slide-tools-mcp/internal/slideerr"

// Re-exported error kinds so callers of this package need no second import.
var (
	ErrOutOfBounds         = slideerr.ErrOutOfBounds
	ErrMisalignedWrite     = slideerr.ErrMisalignedWrite
	ErrInvalidTile         = slideerr.ErrInvalidTile
	ErrDuplicateTile       = slideerr.ErrDuplicateTile
	ErrNotFound            = slideerr.ErrNotFound
	ErrFileNotFound        = slideerr.ErrFileNotFound
	ErrUnreadableFormat    = slideerr.ErrUnreadableFormat
	ErrLevelNotReady       = slideerr.ErrLevelNotReady
	ErrIncompleteBaseImage = slideerr.ErrIncompleteBaseImage
	ErrSessionClosed       = slideerr.ErrSessionClosed
)
