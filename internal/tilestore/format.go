package tilestore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
)

// Format constants. Changing any of them breaks every existing slide file.
const (
	formatVersion  = 1
	superblockSize = 64
)

var magic = [8]byte{'S', 'L', 'I', 'D', 'E', 'T', 'I', 'L'}

const (
	flagFinalized uint16 = 1 << iota
	flagPadEdges
)

// superblock is the fixed-width preamble at offset 0, little-endian:
//
//	0  magic [8]
//	8  version u16, flags u16, channels u16, reserved u16
//	16 width u32, height u32, tileSize u32, reserved u32
//	32 headerOffset u64, headerLength u64
//	48 headerChecksum [16] (truncated BLAKE3 directory-domain digest)
type superblock struct {
	Version        uint16
	Flags          uint16
	Channels       uint16
	Width          uint32
	Height         uint32
	TileSize       uint32
	HeaderOffset   uint64
	HeaderLength   uint64
	HeaderChecksum [16]byte
}

func (sb *superblock) finalized() bool {
	return sb.Flags&flagFinalized != 0 && sb.HeaderOffset != 0
}

func (sb *superblock) marshal() []byte {
	buf := make([]byte, superblockSize)
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint16(buf[8:], sb.Version)
	binary.LittleEndian.PutUint16(buf[10:], sb.Flags)
	binary.LittleEndian.PutUint16(buf[12:], sb.Channels)
	binary.LittleEndian.PutUint32(buf[16:], sb.Width)
	binary.LittleEndian.PutUint32(buf[20:], sb.Height)
	binary.LittleEndian.PutUint32(buf[24:], sb.TileSize)
	binary.LittleEndian.PutUint64(buf[32:], sb.HeaderOffset)
	binary.LittleEndian.PutUint64(buf[40:], sb.HeaderLength)
	copy(buf[48:64], sb.HeaderChecksum[:])
	return buf
}

func unmarshalSuperblock(buf []byte) (*superblock, error) {
	if len(buf) < superblockSize {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "superblock truncated at %d bytes", len(buf))
	}
	if !bytes.Equal(buf[0:8], magic[:]) {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "bad magic %q", buf[0:8])
	}
	sb := &superblock{
		Version:      binary.LittleEndian.Uint16(buf[8:]),
		Flags:        binary.LittleEndian.Uint16(buf[10:]),
		Channels:     binary.LittleEndian.Uint16(buf[12:]),
		Width:        binary.LittleEndian.Uint32(buf[16:]),
		Height:       binary.LittleEndian.Uint32(buf[20:]),
		TileSize:     binary.LittleEndian.Uint32(buf[24:]),
		HeaderOffset: binary.LittleEndian.Uint64(buf[32:]),
		HeaderLength: binary.LittleEndian.Uint64(buf[40:]),
	}
	copy(sb.HeaderChecksum[:], buf[48:64])
	if sb.Version != formatVersion {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "unsupported version %d", sb.Version)
	}
	if sb.Channels != Channels {
		return nil, slideerr.New("open", slideerr.ErrUnreadableFormat, "unsupported channel count %d", sb.Channels)
	}
	return sb, nil
}

// header is the CBOR block the finalized superblock points at.
type header struct {
	ID         string        `cbor:"id"`
	Width      int           `cbor:"width"`
	Height     int           `cbor:"height"`
	TileSize   int           `cbor:"tile_size"`
	Channels   int           `cbor:"channels"`
	EdgePolicy string        `cbor:"edge_policy"`
	NumLevels  int           `cbor:"num_levels"`
	Scales     []int         `cbor:"scale_factors"`
	Levels     []levelRecord `cbor:"levels"`
}

// levelRecord locates one committed level directory.
type levelRecord struct {
	Downsample int    `cbor:"downsample"`
	Width      int    `cbor:"width"`
	Height     int    `cbor:"height"`
	Rows       int    `cbor:"rows"`
	Cols       int    `cbor:"cols"`
	DirOffset  int64  `cbor:"dir_offset"`
	DirLength  int    `cbor:"dir_length"`
	DirSum     []byte `cbor:"dir_sum"`
}

// directory lists every tile of one level in row-major order.
type directory struct {
	Level   int        `cbor:"level"`
	Entries []dirEntry `cbor:"entries"`
}

type dirEntry struct {
	Offset    int64  `cbor:"o"`
	Length    int    `cbor:"n"`
	RawLength int    `cbor:"r"`
	Codec     uint8  `cbor:"c"`
	Sum       []byte `cbor:"s"`
}

// Deterministic encoding keeps directory checksums stable across rebuilds.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tilestore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tilestore: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeBlock(v any) ([]byte, tilecodec.Sum, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, tilecodec.Sum{}, fmt.Errorf("encode block: %w", err)
	}
	return data, tilecodec.ChecksumDirectory(data), nil
}

func decodeBlock(data []byte, want []byte, v any) error {
	sum := tilecodec.ChecksumDirectory(data)
	if len(want) == 0 || len(want) > len(sum) || !bytes.Equal(sum[:len(want)], want) {
		return slideerr.New("open", slideerr.ErrUnreadableFormat, "block checksum mismatch")
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return slideerr.Wrap("open", slideerr.ErrUnreadableFormat, err, "decode block")
	}
	return nil
}
