package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FormatVersion is the record layout written by this package.
const FormatVersion uint8 = 1

// Record is a decoded store value.
type Record struct {
	Version   uint8     // Record format version
	Length    uint64    // Declared payload length
	Checksum  []byte    // Payload digest
	Path      string    // Relative path of the original file
	Payload   []byte    // Original file bytes
	Algorithm Algorithm // Algorithm the checksum was computed with
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct {
	alg Algorithm
}

// NewRecordCodec creates a codec whose checksums use alg.
func NewRecordCodec(alg Algorithm) *RecordCodec {
	return &RecordCodec{alg: alg}
}

// Algorithm returns the checksum algorithm of the codec.
func (c *RecordCodec) Algorithm() Algorithm {
	return c.alg
}

// HeaderSize returns the size of the fixed part of a record:
// Version(1) + Length(8) + Checksum(N) + PathLen(4).
func (c *RecordCodec) HeaderSize() int {
	return 1 + 8 + c.alg.Size() + 4
}

// Encode serializes a path and payload into a record.
// Format: [Version(1)][Length(8)][Checksum(N)][PathLen(4)][Path][Payload]
// A nil checksum is computed from the payload.
func (c *RecordCodec) Encode(relPath string, payload, checksum []byte) ([]byte, error) {
	if !c.alg.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm %q", c.alg)
	}
	if relPath == "" {
		return nil, fmt.Errorf("record path is empty")
	}
	if len(relPath) > math.MaxUint32 {
		return nil, fmt.Errorf("record path too long: %d bytes", len(relPath))
	}
	if checksum == nil {
		checksum = c.alg.Sum(payload)
	}
	if len(checksum) != c.alg.Size() {
		return nil, fmt.Errorf("%s checksum must be %d bytes, got %d", c.alg, c.alg.Size(), len(checksum))
	}

	hdr := c.HeaderSize()
	buf := make([]byte, hdr+len(relPath)+len(payload))

	buf[0] = FormatVersion
	binary.LittleEndian.PutUint64(buf[1:], uint64(len(payload)))
	n := 9 + copy(buf[9:], checksum)
	binary.LittleEndian.PutUint32(buf[n:], uint32(len(relPath)))
	copy(buf[hdr:], relPath)
	copy(buf[hdr+len(relPath):], payload)

	return buf, nil
}

// Decode deserializes a record. The returned record aliases data.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	if len(data) < 1 {
		return nil, corrupt("empty record")
	}
	if data[0] != FormatVersion {
		return nil, corrupt("unsupported format version %d", data[0])
	}

	hdr := c.HeaderSize()
	if len(data) < hdr {
		return nil, corrupt("data too short for record header: %d < %d", len(data), hdr)
	}

	r := &Record{
		Version:   data[0],
		Length:    binary.LittleEndian.Uint64(data[1:9]),
		Checksum:  data[9 : 9+c.alg.Size()],
		Algorithm: c.alg,
	}
	pathLen := uint64(binary.LittleEndian.Uint32(data[hdr-4 : hdr]))
	rest := uint64(len(data) - hdr)

	if pathLen == 0 {
		return nil, corrupt("empty path")
	}
	if pathLen > rest {
		return nil, corrupt("path length %d exceeds record size", pathLen)
	}
	if r.Length != rest-pathLen {
		return nil, corrupt("declared length %d does not match payload length %d", r.Length, rest-pathLen)
	}

	end := hdr + int(pathLen)
	r.Path = string(data[hdr:end])
	r.Payload = data[end:]

	return r, nil
}

// Verify checks the payload against the stored checksum.
func (r *Record) Verify() error {
	if uint64(len(r.Payload)) != r.Length {
		return corrupt("declared length %d does not match payload length %d", r.Length, len(r.Payload))
	}
	got := r.Algorithm.Sum(r.Payload)
	if !bytes.Equal(got, r.Checksum) {
		return &ChecksumMismatchError{Algorithm: r.Algorithm, Want: r.Checksum, Got: got}
	}
	return nil
}

// Size returns the encoded size of the record.
func (r *Record) Size() int {
	return 1 + 8 + len(r.Checksum) + 4 + len(r.Path) + len(r.Payload)
}
