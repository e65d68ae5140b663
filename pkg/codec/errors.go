package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrCorruptRecord matches every *CorruptRecordError.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrChecksumMismatch matches every *ChecksumMismatchError.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrMetaMismatch is returned when a store was created with a different
	// key scheme or checksum algorithm than requested.
	ErrMetaMismatch = errors.New("store metadata mismatch")
)

// CorruptRecordError describes a record that cannot be decoded.
type CorruptRecordError struct {
	Reason string
}

func (e *CorruptRecordError) Error() string {
	return "corrupt record: " + e.Reason
}

func (e *CorruptRecordError) Is(target error) bool {
	return target == ErrCorruptRecord
}

func corrupt(format string, args ...any) error {
	return &CorruptRecordError{Reason: fmt.Sprintf(format, args...)}
}

// ChecksumMismatchError reports a payload whose digest differs from the one
// stored in its header.
type ChecksumMismatchError struct {
	Algorithm Algorithm
	Want      []byte
	Got       []byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: %s != %s",
		e.Algorithm, hex.EncodeToString(e.Got), hex.EncodeToString(e.Want))
}

func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}
