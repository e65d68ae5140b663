package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm names the digest computed over every payload.
type Algorithm string

const (
	CRC32    Algorithm = "crc32"
	XXHash64 Algorithm = "xxhash64"
	SHA256   Algorithm = "sha256"
	BLAKE3   Algorithm = "blake3"
)

// DefaultAlgorithm is used when a config leaves checksum_algorithm empty.
const DefaultAlgorithm = CRC32

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{CRC32, XXHash64, SHA256, BLAKE3}

// ParseAlgorithm returns the algorithm named by s.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown checksum algorithm %q (want one of %v)", s, Algorithms)
	}
	return a, nil
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a.Size() > 0
}

// Size returns the digest width in bytes, or 0 for an unknown algorithm.
func (a Algorithm) Size() int {
	switch a {
	case CRC32:
		return crc32.Size
	case XXHash64:
		return 8
	case SHA256:
		return sha256.Size
	case BLAKE3:
		return 32
	default:
		return 0
	}
}

// Sum returns the digest of data. Integer digests are little-endian.
func (a Algorithm) Sum(data []byte) []byte {
	switch a {
	case CRC32:
		return binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(data))
	case XXHash64:
		return binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(data))
	case SHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case BLAKE3:
		sum := blake3.Sum256(data)
		return sum[:]
	default:
		return nil
	}
}

func (a Algorithm) String() string {
	return string(a)
}
