package tilestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
)

// tileData returns deterministic samples for a tile so reads can be checked.
func tileData(lvl Level, row, col int, policy EdgePolicy) []byte {
	data := make([]byte, lvl.TileBytes(row, col, policy))
	for i := range data {
		data[i] = byte(lvl.Index*31 + row*7 + col*13 + i/3)
	}
	return data
}

func newTestStore(t *testing.T, geom Geometry, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.slide")
	s, err := Create(path, geom, opts...)
	require.NoError(t, err)
	return s, path
}

func fillLevel(t *testing.T, s *Store, index int) {
	t.Helper()
	lvl, err := s.Level(index)
	require.NoError(t, err)
	for row := 0; row < lvl.Rows; row++ {
		for col := 0; col < lvl.Cols; col++ {
			require.NoError(t, s.Put(index, row, col, tileData(lvl, row, col, s.EdgePolicy())))
		}
	}
}

// writeFinalized creates a two-level store with every tile written and
// finalizes it.
func writeFinalized(t *testing.T, geom Geometry, opts ...Option) string {
	t.Helper()
	s, path := newTestStore(t, geom, opts...)
	fillLevel(t, s, 0)
	require.NoError(t, s.CommitLevel(0))
	_, err := s.AddLevel(2)
	require.NoError(t, err)
	fillLevel(t, s, 1)
	require.NoError(t, s.CommitLevel(1))
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Close())
	return path
}

func TestCreate_RefusesExistingPath(t *testing.T) {
	geom := Geometry{Width: 64, Height: 64, TileSize: 32}
	s, path := newTestStore(t, geom)
	require.NoError(t, s.Close())

	_, err := Create(path, geom)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)
}

func TestCreate_InvalidGeometry(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "x"), Geometry{Width: 0, Height: 10, TileSize: 16})
	assert.True(t, slideerr.IsValidation(err))
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		policy EdgePolicy
		codec  tilecodec.Tag
	}{
		{"clip/none", EdgeClip, tilecodec.None},
		{"clip/zstd", EdgeClip, tilecodec.Zstd},
		{"pad/lz4", EdgePad, tilecodec.LZ4},
		{"pad/auto", EdgePad, tilecodec.Auto},
	} {
		t.Run(tc.name, func(t *testing.T) {
			geom := Geometry{Width: 100, Height: 70, TileSize: 32}
			path := writeFinalized(t, geom, WithEdgePolicy(tc.policy), WithCompression(tc.codec))

			s, err := Open(path)
			require.NoError(t, err)
			defer s.Close()

			assert.True(t, s.ReadOnly())
			assert.True(t, s.Finalized())
			assert.Equal(t, geom, s.Geometry())
			assert.Equal(t, tc.policy, s.EdgePolicy())
			require.Len(t, s.Levels(), 2)

			for _, lvl := range s.Levels() {
				for row := 0; row < lvl.Rows; row++ {
					for col := 0; col < lvl.Cols; col++ {
						got, err := s.Get(lvl.Index, row, col)
						require.NoError(t, err)
						assert.Equal(t, tileData(lvl, row, col, tc.policy), got, "tile (%d,%d,%d)", lvl.Index, row, col)
					}
				}
			}
		})
	}
}

func TestOpen_KeepsIdentity(t *testing.T) {
	geom := Geometry{Width: 32, Height: 32, TileSize: 32}
	s, path := newTestStore(t, geom)
	id := s.ID()
	fillLevel(t, s, 0)
	require.NoError(t, s.CommitLevel(0))
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, id, r.ID())
}

func TestPut_Validation(t *testing.T) {
	geom := Geometry{Width: 100, Height: 70, TileSize: 32}
	s, _ := newTestStore(t, geom)
	defer s.Close()
	lvl, _ := s.Level(0)

	// wrong size for an edge tile (clip expects 4x6)
	err := s.Put(0, 2, 3, make([]byte, 32*32*3))
	assert.ErrorIs(t, err, slideerr.ErrInvalidTile)
	assert.True(t, slideerr.IsValidation(err))

	err = s.Put(0, 3, 0, make([]byte, 32*32*3))
	assert.ErrorIs(t, err, slideerr.ErrOutOfBounds)

	err = s.Put(1, 0, 0, make([]byte, 32*32*3))
	assert.ErrorIs(t, err, slideerr.ErrLevelNotReady)

	require.NoError(t, s.Put(0, 0, 0, tileData(lvl, 0, 0, EdgeClip)))
	err = s.Put(0, 0, 0, tileData(lvl, 0, 0, EdgeClip))
	assert.ErrorIs(t, err, slideerr.ErrDuplicateTile)
}

func TestGet_BeforeCommit(t *testing.T) {
	geom := Geometry{Width: 64, Height: 64, TileSize: 32}
	s, _ := newTestStore(t, geom)
	defer s.Close()
	lvl, _ := s.Level(0)
	require.NoError(t, s.Put(0, 0, 0, tileData(lvl, 0, 0, EdgeClip)))

	_, err := s.Get(0, 0, 0)
	assert.ErrorIs(t, err, slideerr.ErrLevelNotReady)

	_, err = s.Get(3, 0, 0)
	assert.ErrorIs(t, err, slideerr.ErrLevelNotReady)
}

func TestCommitLevel_IncompleteBase(t *testing.T) {
	geom := Geometry{Width: 64, Height: 64, TileSize: 32}
	s, _ := newTestStore(t, geom)
	defer s.Close()
	lvl, _ := s.Level(0)
	require.NoError(t, s.Put(0, 0, 0, tileData(lvl, 0, 0, EdgeClip)))

	err := s.CommitLevel(0)
	assert.ErrorIs(t, err, slideerr.ErrIncompleteBaseImage)
	assert.False(t, s.Committed(0))

	missing, err := s.Missing(0)
	require.NoError(t, err)
	assert.Equal(t, []TileCoord{{0, 0, 1}, {0, 1, 0}, {0, 1, 1}}, missing)

	_, err = s.AddLevel(2)
	assert.ErrorIs(t, err, slideerr.ErrLevelNotReady)
}

func TestCommitLevel_IncompleteDerived(t *testing.T) {
	geom := Geometry{Width: 128, Height: 128, TileSize: 32}
	s, _ := newTestStore(t, geom)
	defer s.Close()
	fillLevel(t, s, 0)
	require.NoError(t, s.CommitLevel(0))

	_, err := s.AddLevel(1)
	assert.True(t, slideerr.IsValidation(err), "got %v", err)

	lvl, err := s.AddLevel(2)
	require.NoError(t, err)
	require.NoError(t, s.Put(1, 0, 0, tileData(lvl, 0, 0, EdgeClip)))
	assert.ErrorIs(t, s.CommitLevel(1), slideerr.ErrLevelNotReady)

	// committed levels reject further puts
	assert.ErrorIs(t, s.Put(0, 0, 0, make([]byte, 32*32*3)), slideerr.ErrDuplicateTile)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.slide"))
	assert.ErrorIs(t, err, slideerr.ErrFileNotFound)

	garbage := filepath.Join(dir, "garbage.slide")
	require.NoError(t, os.WriteFile(garbage, bytes.Repeat([]byte("x"), 256), 0o644))
	_, err = Open(garbage)
	assert.ErrorIs(t, err, slideerr.ErrUnreadableFormat)

	short := filepath.Join(dir, "short.slide")
	require.NoError(t, os.WriteFile(short, []byte("SLIDE"), 0o644))
	_, err = Open(short)
	assert.ErrorIs(t, err, slideerr.ErrUnreadableFormat)
}

func TestOpen_Unfinalized(t *testing.T) {
	geom := Geometry{Width: 64, Height: 64, TileSize: 32}
	s, path := newTestStore(t, geom)
	fillLevel(t, s, 0)
	require.NoError(t, s.CommitLevel(0))
	// crash before Finalize
	require.NoError(t, s.Close())

	_, err := Open(path)
	assert.ErrorIs(t, err, slideerr.ErrLevelNotReady)
}

func TestOpen_CorruptHeader(t *testing.T) {
	path := writeFinalized(t, Geometry{Width: 64, Height: 64, TileSize: 32})

	info, err := os.Stat(path)
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	// the header is the last block in the file
	_, err = f.WriteAt([]byte{0xff, 0xfe}, info.Size()-4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, slideerr.ErrUnreadableFormat)
}

func TestOpen_EdgePolicyFlagMismatch(t *testing.T) {
	for _, policy := range []EdgePolicy{EdgeClip, EdgePad} {
		t.Run(policy.String(), func(t *testing.T) {
			path := writeFinalized(t, Geometry{Width: 40, Height: 40, TileSize: 32}, WithEdgePolicy(policy))

			f, err := os.OpenFile(path, os.O_RDWR, 0)
			require.NoError(t, err)
			flags := make([]byte, 1)
			_, err = f.ReadAt(flags, 10)
			require.NoError(t, err)
			// flip the pad-edges bit of the superblock flags
			_, err = f.WriteAt([]byte{flags[0] ^ byte(flagPadEdges)}, 10)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			_, err = Open(path)
			assert.ErrorIs(t, err, slideerr.ErrUnreadableFormat)
		})
	}
}

func TestGet_ChecksumMismatch(t *testing.T) {
	path := writeFinalized(t, Geometry{Width: 64, Height: 64, TileSize: 32})

	s, err := Open(path)
	require.NoError(t, err)
	off := s.levels[0].entries[1].offset
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x5a}, off+10)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(0, 0, 0)
	assert.NoError(t, err)
	_, err = s.Get(0, 0, 1)
	assert.ErrorIs(t, err, slideerr.ErrChecksumMismatch)
	assert.ErrorIs(t, s.VerifyTile(0, 0, 1), slideerr.ErrChecksumMismatch)

	unchecked, err := Open(path, WithVerifyChecksums(false))
	require.NoError(t, err)
	defer unchecked.Close()
	_, err = unchecked.Get(0, 0, 1)
	assert.NoError(t, err)
	assert.ErrorIs(t, unchecked.VerifyTile(0, 0, 1), slideerr.ErrChecksumMismatch)
}

func TestReadOnly(t *testing.T) {
	path := writeFinalized(t, Geometry{Width: 64, Height: 64, TileSize: 32})
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Put(0, 0, 0, nil), ErrReadOnly)
	_, err = s.AddLevel(4)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.CommitLevel(0), ErrReadOnly)
	assert.ErrorIs(t, s.Finalize(), ErrReadOnly)
}

func TestFinalize_RequiresCommittedLevels(t *testing.T) {
	s, _ := newTestStore(t, Geometry{Width: 64, Height: 64, TileSize: 32})
	defer s.Close()
	fillLevel(t, s, 0)

	assert.ErrorIs(t, s.Finalize(), slideerr.ErrLevelNotReady)
	require.NoError(t, s.CommitLevel(0))
	require.NoError(t, s.Finalize())
	assert.True(t, s.Finalized())

	assert.ErrorIs(t, s.Put(0, 0, 0, make([]byte, 32*32*3)), ErrReadOnly)
}

func TestClose_Twice(t *testing.T) {
	s, _ := newTestStore(t, Geometry{Width: 32, Height: 32, TileSize: 32})

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), slideerr.ErrSessionClosed)
	_, err := s.Get(0, 0, 0)
	assert.ErrorIs(t, err, slideerr.ErrSessionClosed)
	assert.ErrorIs(t, s.Put(0, 0, 0, nil), slideerr.ErrSessionClosed)
}

func TestPut_Concurrent(t *testing.T) {
	geom := Geometry{Width: 256, Height: 256, TileSize: 32}
	s, path := newTestStore(t, geom, WithCompression(tilecodec.Zstd))
	lvl, _ := s.Level(0)

	var wg sync.WaitGroup
	errs := make(chan error, lvl.TileCount())
	for row := 0; row < lvl.Rows; row++ {
		for col := 0; col < lvl.Cols; col++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Put(0, row, col, tileData(lvl, row, col, EdgeClip))
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, s.CommitLevel(0))
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	for row := 0; row < lvl.Rows; row++ {
		for col := 0; col < lvl.Cols; col++ {
			got, err := r.Get(0, row, col)
			require.NoError(t, err)
			assert.Equal(t, tileData(lvl, row, col, EdgeClip), got)
		}
	}
}

func TestAddLevel_MultipleOfPrevious(t *testing.T) {
	s, _ := newTestStore(t, Geometry{Width: 256, Height: 256, TileSize: 32})
	defer s.Close()
	fillLevel(t, s, 0)
	require.NoError(t, s.CommitLevel(0))

	_, err := s.AddLevel(2)
	require.NoError(t, err)
	fillLevel(t, s, 1)
	require.NoError(t, s.CommitLevel(1))

	_, err = s.AddLevel(3)
	assert.True(t, slideerr.IsValidation(err), "got %v", err)

	lvl, err := s.AddLevel(6)
	require.NoError(t, err)
	assert.Equal(t, 43, lvl.Width)
}
