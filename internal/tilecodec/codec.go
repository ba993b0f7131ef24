// Package tilecodec compresses and checksums tile payloads.
//
// Each stored tile records the Tag that encoded it, so a single slide may mix
// algorithms: tiles that do not shrink are stored raw regardless of the
// configured preference. Checksums are always computed over the raw
// (uncompressed) samples.
package tilecodec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the algorithm used for one tile payload. Values are stored
// in level directories and must not change.
type Tag uint8

const (
	// None stores raw samples.
	None Tag = 0
	// LZ4 is block-mode LZ4: fast, modest ratio.
	LZ4 Tag = 1
	// Zstd is zstd at the default level: slower, better ratio on flat backgrounds.
	Zstd Tag = 2

	// Auto is a write-side preference only; it is never stored.
	Auto Tag = 255
)

// String returns the configuration name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its configuration name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "auto":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

var errIncompressible = errors.New("payload is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("tilecodec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("tilecodec: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses raw with the preferred tag. It returns the stored payload
// and the tag actually used; incompressible input comes back unchanged with None.
func Encode(raw []byte, preferred Tag) ([]byte, Tag, error) {
	tag := preferred
	if tag == Auto {
		tag = selectTag(raw)
	}

	var (
		payload []byte
		err     error
	)
	switch tag {
	case None:
		return raw, None, nil
	case LZ4:
		payload, err = compressLZ4(raw)
	case Zstd:
		payload, err = compressZstd(raw)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return raw, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return payload, tag, nil
}

// Decode reverses Encode. rawLength must equal the original sample count.
func Decode(payload []byte, tag Tag, rawLength int) ([]byte, error) {
	switch tag {
	case None:
		if len(payload) != rawLength {
			return nil, fmt.Errorf("raw payload: size %d does not match expected %d", len(payload), rawLength)
		}
		return payload, nil
	case LZ4:
		out := make([]byte, rawLength)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawLength {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawLength)
		}
		return out, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawLength))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != rawLength {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLength)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(raw []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(raw) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func compressZstd(raw []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(raw, nil)
	if len(out) >= len(raw) {
		return nil, errIncompressible
	}
	return out, nil
}

// selectTag probes raw with zstd. Mostly-flat tiles (slide background) compress
// far better than 1.5x and get zstd; textured tissue usually lands in the LZ4 band.
func selectTag(raw []byte) Tag {
	if len(raw) == 0 {
		return None
	}
	ratio := float64(len(raw)) / float64(len(zstdEncoder.EncodeAll(raw, nil)))
	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}
