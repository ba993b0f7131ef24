package tilecodec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Sum is a 32-byte BLAKE3 digest.
type Sum [32]byte

// String returns the lowercase hex form.
func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether s is the zero digest (never produced by Checksum).
func (s Sum) IsZero() bool {
	return s == Sum{}
}

// Domain keys keep tile and directory digests from ever colliding. They are
// the ASCII domain name zero-padded to 32 bytes and must not change.
var (
	tileDomainKey = [32]byte{
		's', 'l', 'i', 'd', 'e', '.', 't', 'i', 'l', 'e',
	}
	directoryDomainKey = [32]byte{
		's', 'l', 'i', 'd', 'e', '.', 'd', 'i', 'r', 'e', 'c', 't', 'o', 'r', 'y',
	}
)

// Checksum hashes raw tile samples.
func Checksum(raw []byte) Sum {
	return keyed(tileDomainKey, raw)
}

// ChecksumDirectory hashes an encoded directory or header block.
func ChecksumDirectory(block []byte) Sum {
	return keyed(directoryDomainKey, block)
}

func keyed(key [32]byte, data []byte) Sum {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("tilecodec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum Sum
	copy(sum[:], hasher.Sum(nil))
	return sum
}
