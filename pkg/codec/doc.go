// Package codec provides the key schema and record serialization used by
// datapak stores.
//
// A datapak store is an ordered key-value store in which every packed file is
// one record. This package owns the byte-level contract of that store: how a
// dataset entry maps to a key, how its path and payload are laid out inside
// the value, and how store-level metadata is encoded.
//
// # Keys
//
// Two key schemes are supported and recorded in the store metadata:
//
//	path:    "p/" + normalized relative path   (lexical order)
//	ordinal: "o/" + 12 digit zero padded index (write order)
//
// Both schemes are deterministic, so re-packing an unchanged source produces
// the same keys. The metadata record lives under the reserved key "__meta__",
// outside both prefixes.
//
// # Record Format
//
// Records are serialized in a binary format with the following structure:
//
//	[Version(1)][Length(8)][Checksum(N)][PathLen(4)][Path][Payload]
//
// Fields:
//   - Version: record format version, currently 1
//   - Length: 64-bit unsigned payload length in bytes (little-endian)
//   - Checksum: digest of the payload; N is fixed by the store's algorithm
//     (crc32=4, xxhash64=8, sha256=32, blake3=32)
//   - PathLen: 32-bit unsigned length of the relative path (little-endian)
//   - Path: slash separated relative path of the original file
//   - Payload: the original file bytes, stored opaquely
//
// # Usage
//
//	c := codec.NewRecordCodec(codec.SHA256)
//
//	encoded, err := c.Encode("images/0001.jpg", payload, nil)
//	if err != nil {
//	    return err
//	}
//
//	record, err := c.Decode(encoded)
//	if err != nil {
//	    return err // *CorruptRecordError
//	}
//	if err := record.Verify(); err != nil {
//	    return err // ErrChecksumMismatch
//	}
//
// # Error Handling
//
// Decode fails with a *CorruptRecordError (matching ErrCorruptRecord) when
// the header is truncated, the version is unknown, or the declared payload
// length differs from the bytes actually present. Verify reports
// ErrChecksumMismatch when the payload digest does not match the header.
//
// # Thread Safety
//
// RecordCodec instances are stateless and safe for concurrent use. Decoded
// records alias the input buffer; callers that reuse the buffer must copy.
package codec
