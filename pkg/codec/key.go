package codec

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// KeyScheme selects how dataset entries map to store keys.
type KeyScheme string

const (
	// PathKeys keys entries by normalized relative path.
	PathKeys KeyScheme = "path"
	// OrdinalKeys keys entries by their position in the enumerated sequence.
	OrdinalKeys KeyScheme = "ordinal"
)

// MetaKey holds the store metadata record.
var MetaKey = []byte("__meta__")

const (
	pathPrefix    = "p/"
	ordinalPrefix = "o/"
	ordinalDigits = 12
)

// ParseKeyScheme returns the scheme named by s; empty means PathKeys.
func ParseKeyScheme(s string) (KeyScheme, error) {
	switch KeyScheme(s) {
	case "":
		return PathKeys, nil
	case PathKeys, OrdinalKeys:
		return KeyScheme(s), nil
	default:
		return "", fmt.Errorf("unknown key scheme %q (want path or ordinal)", s)
	}
}

// Prefix returns the prefix shared by every entry key of the scheme.
func (s KeyScheme) Prefix() []byte {
	if s == OrdinalKeys {
		return []byte(ordinalPrefix)
	}
	return []byte(pathPrefix)
}

// UpperBound returns the first key past every entry key of the scheme.
func (s KeyScheme) UpperBound() []byte {
	p := s.Prefix()
	p[len(p)-1]++
	return p
}

// Key returns the store key of an entry.
func (s KeyScheme) Key(relPath string, ordinal uint64) ([]byte, error) {
	switch s {
	case PathKeys:
		return PathKey(relPath)
	case OrdinalKeys:
		return OrdinalKey(ordinal), nil
	default:
		return nil, fmt.Errorf("unknown key scheme %q", s)
	}
}

// Owns reports whether key belongs to the scheme's key space.
func (s KeyScheme) Owns(key []byte) bool {
	return bytes.HasPrefix(key, s.Prefix())
}

// PathKey returns the key for a relative path.
func PathKey(relPath string) ([]byte, error) {
	p, err := NormalizePath(relPath)
	if err != nil {
		return nil, err
	}
	return append([]byte(pathPrefix), p...), nil
}

// OrdinalKey returns the key for the n-th entry.
func OrdinalKey(n uint64) []byte {
	return fmt.Appendf(nil, "%s%0*d", ordinalPrefix, ordinalDigits, n)
}

// ParseOrdinalKey is the inverse of OrdinalKey.
func ParseOrdinalKey(key []byte) (uint64, error) {
	if !bytes.HasPrefix(key, []byte(ordinalPrefix)) {
		return 0, fmt.Errorf("not an ordinal key: %q", key)
	}
	return strconv.ParseUint(string(key[len(ordinalPrefix):]), 10, 64)
}

// IsMetaKey reports whether key is the reserved metadata key.
func IsMetaKey(key []byte) bool {
	return bytes.Equal(key, MetaKey)
}

// NormalizePath cleans a relative path into its canonical slash form. It
// rejects paths that are empty, absolute, contain NUL, or climb above the
// root.
func NormalizePath(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("path %q contains NUL", relPath)
	}
	if strings.HasPrefix(relPath, "/") {
		return "", fmt.Errorf("path %q is absolute", relPath)
	}
	p := path.Clean(relPath)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q is outside the dataset root", relPath)
	}
	return p, nil
}
