package codec

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StoreMeta is the store-level metadata kept under MetaKey.
type StoreMeta struct {
	FormatVersion uint8     `cbor:"format_version"`
	KeyScheme     KeyScheme `cbor:"key_scheme"`
	Checksum      Algorithm `cbor:"checksum"`
	EntryCount    uint64    `cbor:"entry_count"`
	TotalBytes    uint64    `cbor:"total_bytes"`
	CreatedAt     time.Time `cbor:"created_at"`
	UpdatedAt     time.Time `cbor:"updated_at"`
	LastRunID     string    `cbor:"last_run_id"`
	Runs          uint64    `cbor:"runs"`
}

var (
	metaEncMode cbor.EncMode
	metaDecMode cbor.DecMode
)

func init() {
	// Core deterministic encoding: the same metadata always yields the same
	// bytes.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	var err error
	metaEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	metaDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewStoreMeta returns metadata for an empty store.
func NewStoreMeta(scheme KeyScheme, alg Algorithm) *StoreMeta {
	now := time.Now().UTC()
	return &StoreMeta{
		FormatVersion: FormatVersion,
		KeyScheme:     scheme,
		Checksum:      alg,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// EncodeMeta serializes m.
func EncodeMeta(m *StoreMeta) ([]byte, error) {
	return metaEncMode.Marshal(m)
}

// DecodeMeta parses a metadata record.
func DecodeMeta(data []byte) (*StoreMeta, error) {
	var m StoreMeta
	if err := metaDecMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode store metadata: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported store format version %d", m.FormatVersion)
	}
	if _, err := ParseKeyScheme(string(m.KeyScheme)); err != nil {
		return nil, fmt.Errorf("store metadata: %w", err)
	}
	if !m.Checksum.Valid() {
		return nil, fmt.Errorf("store metadata: unknown checksum algorithm %q", m.Checksum)
	}
	return &m, nil
}

// Compatible returns ErrMetaMismatch when the store was created with a
// different key scheme or checksum algorithm.
func (m *StoreMeta) Compatible(scheme KeyScheme, alg Algorithm) error {
	if m.KeyScheme != scheme {
		return fmt.Errorf("%w: store uses %s keys, config requests %s", ErrMetaMismatch, m.KeyScheme, scheme)
	}
	if m.Checksum != alg {
		return fmt.Errorf("%w: store uses %s checksums, config requests %s", ErrMetaMismatch, m.Checksum, alg)
	}
	return nil
}
