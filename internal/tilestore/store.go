package tilestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
)

// ErrReadOnly is returned by mutating calls on a store opened with Open or
// already finalized.
var ErrReadOnly = errors.New("tile store is read-only")

// Store is the tile grid of one slide file. See the package documentation
// for the layout and concurrency rules.
type Store struct {
	path         string
	file         *os.File
	readOnly     bool
	geom         Geometry
	id           uuid.UUID
	edge         EdgePolicy
	compression  tilecodec.Tag
	syncEveryPut bool
	verify       bool
	logger       Logger

	mu        sync.Mutex
	end       int64
	levels    []*levelState
	finalized bool

	closed atomic.Bool
}

type levelState struct {
	Level
	entries   []entry
	written   int
	committed bool
	record    levelRecord
}

// entry locates one tile payload. Entries live in a flat row-major arena per level.
type entry struct {
	offset    int64
	length    int
	rawLength int
	codec     tilecodec.Tag
	sum       tilecodec.Sum
	present   bool
}

func newLevelState(l Level) *levelState {
	return &levelState{Level: l, entries: make([]entry, l.TileCount())}
}

func newStore(path string, readOnly bool, opts []Option) (*Store, error) {
	s := &Store{
		path:        path,
		readOnly:    readOnly,
		compression: tilecodec.None,
		verify:      true,
		logger:      defaultLogger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create makes a new slide file at path and declares level 0. The path must
// not exist.
func Create(path string, geom Geometry, opts ...Option) (*Store, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	s, err := newStore(path, false, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s.file = f
	s.geom = geom
	s.id = uuid.New()
	s.levels = []*levelState{newLevelState(NewLevel(geom, 0, 1))}

	sb := s.superblock()
	if _, err := f.WriteAt(sb.marshal(), 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write superblock: %w", err)
	}
	s.end = superblockSize

	s.logger.Info("tile store created",
		"path", path,
		"width", geom.Width,
		"height", geom.Height,
		"tile_size", geom.TileSize,
		"edge_policy", s.edge.String(),
		"compression", s.compression.String())
	return s, nil
}

// Open loads a finalized slide file read-only.
func Open(path string, opts ...Option) (*Store, error) {
	s, err := newStore(path, true, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, slideerr.Wrap("open", slideerr.ErrFileNotFound, err, "%s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := s.load(f); err != nil {
		f.Close()
		return nil, err
	}
	s.file = f

	s.logger.Debug("tile store opened", "path", path, "id", s.id.String(), "levels", len(s.levels))
	return s, nil
}

func (s *Store) load(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	size := info.Size()

	buf := make([]byte, superblockSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read superblock: %w", err)
	}
	sb, err := unmarshalSuperblock(buf[:n])
	if err != nil {
		return err
	}
	if !sb.finalized() {
		return slideerr.New("open", slideerr.ErrLevelNotReady, "%s was never finalized", f.Name())
	}

	hdrBytes, err := readBlock(f, int64(sb.HeaderOffset), int64(sb.HeaderLength), size)
	if err != nil {
		return err
	}
	var hdr header
	if err := decodeBlock(hdrBytes, sb.HeaderChecksum[:], &hdr); err != nil {
		return err
	}

	s.geom = Geometry{Width: hdr.Width, Height: hdr.Height, TileSize: hdr.TileSize}
	if hdr.Width != int(sb.Width) || hdr.Height != int(sb.Height) || hdr.TileSize != int(sb.TileSize) ||
		hdr.Channels != Channels {
		return slideerr.New("open", slideerr.ErrUnreadableFormat, "header disagrees with superblock")
	}
	if err := s.geom.Validate(); err != nil {
		return slideerr.Wrap("open", slideerr.ErrUnreadableFormat, err, "header geometry")
	}
	if s.id, err = uuid.Parse(hdr.ID); err != nil {
		return slideerr.Wrap("open", slideerr.ErrUnreadableFormat, err, "slide id")
	}
	if s.edge, err = ParseEdgePolicy(hdr.EdgePolicy); err != nil {
		return slideerr.Wrap("open", slideerr.ErrUnreadableFormat, err, "edge policy")
	}
	if padded := sb.Flags&flagPadEdges != 0; padded != (s.edge == EdgePad) {
		return slideerr.New("open", slideerr.ErrUnreadableFormat,
			"header edge policy %s disagrees with superblock flags", s.edge)
	}
	if hdr.NumLevels < 1 || hdr.NumLevels != len(hdr.Levels) || len(hdr.Scales) != hdr.NumLevels {
		return slideerr.New("open", slideerr.ErrUnreadableFormat, "level count %d inconsistent", hdr.NumLevels)
	}

	for i, rec := range hdr.Levels {
		ls, err := s.loadLevel(f, i, rec, hdr.Scales[i], size)
		if err != nil {
			return err
		}
		s.levels = append(s.levels, ls)
	}

	s.finalized = true
	s.end = size
	return nil
}

func (s *Store) loadLevel(f *os.File, index int, rec levelRecord, scale int, size int64) (*levelState, error) {
	if rec.Downsample != scale || rec.Downsample < 1 || (index == 0 && rec.Downsample != 1) {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "level %d downsample %d invalid", index, rec.Downsample)
	}
	if index > 0 {
		prev := s.levels[index-1].Downsample
		if rec.Downsample <= prev || rec.Downsample%prev != 0 {
			return nil, slideerr.New("open", slideerr.ErrUnreadableFormat,
				"level %d downsample %d does not follow %d", index, rec.Downsample, prev)
		}
	}
	lvl := NewLevel(s.geom, index, rec.Downsample)
	if lvl.Width != rec.Width || lvl.Height != rec.Height || lvl.Rows != rec.Rows || lvl.Cols != rec.Cols {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "level %d dimensions inconsistent", index)
	}

	dirBytes, err := readBlock(f, rec.DirOffset, int64(rec.DirLength), size)
	if err != nil {
		return nil, err
	}
	var dir directory
	if err := decodeBlock(dirBytes, rec.DirSum, &dir); err != nil {
		return nil, err
	}
	if dir.Level != index || len(dir.Entries) != lvl.TileCount() {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "level %d directory has %d entries, want %d",
			index, len(dir.Entries), lvl.TileCount())
	}

	ls := newLevelState(lvl)
	for i, de := range dir.Entries {
		if de.Offset < superblockSize || de.Length < 0 || de.Offset+int64(de.Length) > size || len(de.Sum) != len(tilecodec.Sum{}) ||
			de.RawLength != lvl.TileBytes(i/lvl.Cols, i%lvl.Cols, s.edge) {
			return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "level %d entry %d out of range", index, i)
		}
		e := entry{
			offset:    de.Offset,
			length:    de.Length,
			rawLength: de.RawLength,
			codec:     tilecodec.Tag(de.Codec),
			present:   true,
		}
		copy(e.sum[:], de.Sum)
		ls.entries[i] = e
	}
	ls.written = len(dir.Entries)
	ls.committed = true
	ls.record = rec
	return ls, nil
}

func readBlock(f *os.File, offset, length, size int64) ([]byte, error) {
	if offset < superblockSize || length <= 0 || offset+length > size {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "block [%d,+%d) outside file of %d bytes", offset, length, size)
	}
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read block at %d: %w", offset, err)
	}
	return buf, nil
}

func (s *Store) superblock() *superblock {
	sb := &superblock{
		Version:  formatVersion,
		Channels: Channels,
		Width:    uint32(s.geom.Width),
		Height:   uint32(s.geom.Height),
		TileSize: uint32(s.geom.TileSize),
	}
	if s.edge == EdgePad {
		sb.Flags |= flagPadEdges
	}
	return sb
}

// Path returns the file path the store was created or opened with.
func (s *Store) Path() string { return s.path }

// ID returns the slide identifier recorded in the header.
func (s *Store) ID() uuid.UUID { return s.id }

// Geometry returns the create-time geometry.
func (s *Store) Geometry() Geometry { return s.geom }

// EdgePolicy returns how edge tiles are stored.
func (s *Store) EdgePolicy() EdgePolicy { return s.edge }

// ReadOnly reports whether the store was opened for reading.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Levels returns the declared levels in order.
func (s *Store) Levels() []Level {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	out := make([]Level, len(s.levels))
	for i, ls := range s.levels {
		out[i] = ls.Level
	}
	return out
}

// Level returns one declared level.
func (s *Store) Level(index int) (Level, error) {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if index < 0 || index >= len(s.levels) {
		return Level{}, slideerr.New("level", slideerr.ErrOutOfBounds, "level %d not in [0,%d)", index, len(s.levels))
	}
	return s.levels[index].Level, nil
}

// Committed reports whether a level's directory has been written.
func (s *Store) Committed(index int) bool {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return index >= 0 && index < len(s.levels) && s.levels[index].committed
}

// Finalized reports whether the header and superblock have been written.
func (s *Store) Finalized() bool {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.finalized
}

// Put stores one tile. Tiles are write-once; the payload length must match the
// stored tile shape for the store's edge policy.
func (s *Store) Put(level, row, col int, data []byte) error {
	if s.closed.Load() {
		return slideerr.New("put", slideerr.ErrSessionClosed, "%s", s.path)
	}
	if s.readOnly {
		return fmt.Errorf("put %s: %w", TileCoord{level, row, col}, ErrReadOnly)
	}

	// Validate under the lock, compress outside it so parallel writers overlap.
	s.mu.Lock()
	_, err := s.vacantSlot(level, row, col, len(data))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	sum := tilecodec.Checksum(data)
	payload, tag, err := tilecodec.Encode(data, s.compression)
	if err != nil {
		return fmt.Errorf("put %s: %w", TileCoord{level, row, col}, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.vacantSlot(level, row, col, len(data))
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(payload, s.end); err != nil {
		return fmt.Errorf("put %s: %w", TileCoord{level, row, col}, err)
	}
	if s.syncEveryPut {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("put %s: sync: %w", TileCoord{level, row, col}, err)
		}
	}

	ls.entries[row*ls.Cols+col] = entry{
		offset:    s.end,
		length:    len(payload),
		rawLength: len(data),
		codec:     tag,
		sum:       sum,
		present:   true,
	}
	ls.written++
	s.end += int64(len(payload))

	s.logger.Debug("tile stored", "level", level, "row", row, "col", col,
		"raw", len(data), "stored", len(payload), "codec", tag.String())
	return nil
}

// vacantSlot validates a put. Callers hold s.mu.
func (s *Store) vacantSlot(level, row, col, size int) (*levelState, error) {
	if s.finalized {
		return nil, fmt.Errorf("put %s: %w", TileCoord{level, row, col}, ErrReadOnly)
	}
	if level < 0 {
		return nil, slideerr.New("put", slideerr.ErrOutOfBounds, "level %d", level)
	}
	if level >= len(s.levels) {
		return nil, slideerr.New("put", slideerr.ErrLevelNotReady, "level %d has not been declared", level)
	}
	ls := s.levels[level]
	if !ls.Contains(row, col) {
		return nil, slideerr.New("put", slideerr.ErrOutOfBounds, "tile %s outside %dx%d grid",
			TileCoord{level, row, col}, ls.Rows, ls.Cols)
	}
	if want := ls.TileBytes(row, col, s.edge); size != want {
		return nil, slideerr.New("put", slideerr.ErrInvalidTile, "tile %s has %d bytes, want %d",
			TileCoord{level, row, col}, size, want)
	}
	if ls.committed || ls.entries[row*ls.Cols+col].present {
		return nil, slideerr.New("put", slideerr.ErrDuplicateTile, "tile %s", TileCoord{level, row, col})
	}
	return ls, nil
}

// Get returns the raw samples of one tile, shaped per StoredSize.
func (s *Store) Get(level, row, col int) ([]byte, error) {
	return s.get(level, row, col, s.verify)
}

// VerifyTile reads one tile and checks its checksum even when verification
// on Get is disabled.
func (s *Store) VerifyTile(level, row, col int) error {
	_, err := s.get(level, row, col, true)
	return err
}

func (s *Store) get(level, row, col int, verify bool) ([]byte, error) {
	if s.closed.Load() {
		return nil, slideerr.New("get", slideerr.ErrSessionClosed, "%s", s.path)
	}
	e, err := s.lookup(level, row, col)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, e.length)
	if n, err := s.file.ReadAt(payload, e.offset); n != e.length {
		return nil, fmt.Errorf("get %s: %w", TileCoord{level, row, col}, err)
	}
	raw, err := tilecodec.Decode(payload, e.codec, e.rawLength)
	if err != nil {
		return nil, slideerr.Wrap("get", slideerr.ErrUnreadableFormat, err, "tile %s", TileCoord{level, row, col})
	}
	if verify && tilecodec.Checksum(raw) != e.sum {
		return nil, slideerr.New("get", slideerr.ErrChecksumMismatch, "tile %s", TileCoord{level, row, col})
	}
	return raw, nil
}

func (s *Store) lookup(level, row, col int) (entry, error) {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if level < 0 || (s.readOnly && level >= len(s.levels)) {
		return entry{}, slideerr.New("get", slideerr.ErrOutOfBounds, "level %d not in [0,%d)", level, len(s.levels))
	}
	if level >= len(s.levels) {
		return entry{}, slideerr.New("get", slideerr.ErrLevelNotReady, "level %d has not been built", level)
	}
	ls := s.levels[level]
	if !ls.Contains(row, col) {
		return entry{}, slideerr.New("get", slideerr.ErrOutOfBounds, "tile %s outside %dx%d grid",
			TileCoord{level, row, col}, ls.Rows, ls.Cols)
	}
	if !ls.committed {
		return entry{}, slideerr.New("get", slideerr.ErrLevelNotReady, "level %d is not finalized", level)
	}
	e := ls.entries[row*ls.Cols+col]
	if !e.present {
		return entry{}, slideerr.New("get", slideerr.ErrNotFound, "tile %s", TileCoord{level, row, col})
	}
	return e, nil
}

// Missing lists the unwritten tiles of a level in row-major order.
func (s *Store) Missing(level int) ([]TileCoord, error) {
	if !s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if level < 0 || level >= len(s.levels) {
		return nil, slideerr.New("missing", slideerr.ErrOutOfBounds, "level %d not in [0,%d)", level, len(s.levels))
	}
	ls := s.levels[level]
	var out []TileCoord
	for i, e := range ls.entries {
		if !e.present {
			out = append(out, TileCoord{Level: level, Row: i / ls.Cols, Col: i % ls.Cols})
		}
	}
	return out, nil
}

// AddLevel declares the next pyramid level. The previous level must be
// committed and downsample must be a proper multiple of its factor.
func (s *Store) AddLevel(downsample int) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly || s.finalized {
		return Level{}, fmt.Errorf("add level: %w", ErrReadOnly)
	}

	last := s.levels[len(s.levels)-1]
	if !last.committed {
		return Level{}, slideerr.New("add level", slideerr.ErrLevelNotReady,
			"level %d must be committed first", last.Index)
	}
	if downsample <= last.Downsample || downsample%last.Downsample != 0 {
		return Level{}, slideerr.Invalid("add level", "downsample %d is not a multiple of %d", downsample, last.Downsample)
	}

	lvl := NewLevel(s.geom, len(s.levels), downsample)
	s.levels = append(s.levels, newLevelState(lvl))
	s.logger.Debug("level declared", "level", lvl.Index, "downsample", downsample,
		"width", lvl.Width, "height", lvl.Height, "tiles", lvl.TileCount())
	return lvl, nil
}

// CommitLevel writes the directory of a complete level and makes it readable.
// Nothing is written when a tile is missing: level 0 then fails with
// ErrIncompleteBaseImage, derived levels with ErrLevelNotReady.
func (s *Store) CommitLevel(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly || s.finalized {
		return fmt.Errorf("commit level %d: %w", level, ErrReadOnly)
	}
	if level < 0 || level >= len(s.levels) {
		return slideerr.New("commit", slideerr.ErrOutOfBounds, "level %d not in [0,%d)", level, len(s.levels))
	}
	ls := s.levels[level]
	if ls.committed {
		return nil
	}
	if missing := ls.TileCount() - ls.written; missing > 0 {
		kind := slideerr.ErrLevelNotReady
		if level == 0 {
			kind = slideerr.ErrIncompleteBaseImage
		}
		return slideerr.New("commit", kind, "level %d is missing %d of %d tiles", level, missing, ls.TileCount())
	}

	dir := directory{Level: level, Entries: make([]dirEntry, len(ls.entries))}
	for i, e := range ls.entries {
		sum := e.sum
		dir.Entries[i] = dirEntry{
			Offset:    e.offset,
			Length:    e.length,
			RawLength: e.rawLength,
			Codec:     uint8(e.codec),
			Sum:       sum[:],
		}
	}
	data, sum, err := encodeBlock(dir)
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(data, s.end); err != nil {
		return fmt.Errorf("commit level %d: %w", level, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("commit level %d: sync: %w", level, err)
	}

	ls.record = levelRecord{
		Downsample: ls.Downsample,
		Width:      ls.Width,
		Height:     ls.Height,
		Rows:       ls.Rows,
		Cols:       ls.Cols,
		DirOffset:  s.end,
		DirLength:  len(data),
		DirSum:     sum[:],
	}
	s.end += int64(len(data))
	ls.committed = true

	s.logger.Info("level committed", "level", level, "downsample", ls.Downsample, "tiles", ls.TileCount())
	return nil
}

// Flush makes every completed Put durable.
func (s *Store) Flush() error {
	if s.readOnly {
		return nil
	}
	if s.closed.Load() {
		return slideerr.New("flush", slideerr.ErrSessionClosed, "%s", s.path)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

// Finalize writes the header, then points the superblock at it. After
// Finalize the file opens for reading and the store accepts no more writes.
func (s *Store) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return fmt.Errorf("finalize: %w", ErrReadOnly)
	}
	if s.finalized {
		return nil
	}

	hdr := header{
		ID:         s.id.String(),
		Width:      s.geom.Width,
		Height:     s.geom.Height,
		TileSize:   s.geom.TileSize,
		Channels:   Channels,
		EdgePolicy: s.edge.String(),
		NumLevels:  len(s.levels),
	}
	for _, ls := range s.levels {
		if !ls.committed {
			return slideerr.New("finalize", slideerr.ErrLevelNotReady, "level %d is not committed", ls.Index)
		}
		hdr.Scales = append(hdr.Scales, ls.Downsample)
		hdr.Levels = append(hdr.Levels, ls.record)
	}

	data, sum, err := encodeBlock(hdr)
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(data, s.end); err != nil {
		return fmt.Errorf("finalize: write header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("finalize: sync header: %w", err)
	}

	sb := s.superblock()
	sb.Flags |= flagFinalized
	sb.HeaderOffset = uint64(s.end)
	sb.HeaderLength = uint64(len(data))
	copy(sb.HeaderChecksum[:], sum[:])
	if _, err := s.file.WriteAt(sb.marshal(), 0); err != nil {
		return fmt.Errorf("finalize: write superblock: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("finalize: sync superblock: %w", err)
	}

	s.end += int64(len(data))
	s.finalized = true
	s.logger.Info("tile store finalized", "path", s.path, "levels", len(s.levels), "bytes", s.end)
	return nil
}

// Close releases the file handle. A second Close returns ErrSessionClosed.
// Closing a writable store that was never finalized leaves a file Open rejects.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return slideerr.New("close", slideerr.ErrSessionClosed, "%s", s.path)
	}

	var syncErr error
	if !s.readOnly {
		s.mu.Lock()
		if !s.finalized {
			s.logger.Warn("closing unfinalized tile store", "path", s.path)
		}
		s.mu.Unlock()
		syncErr = s.file.Sync()
	}
	if err := errors.Join(syncErr, s.file.Close()); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}
