// Package scan reads packed entries back out of a store, either as a full
// ordered scan or by random access.
package scan

import (
	"bytes"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/store"
)

// Scanner iterates every entry of a store in key order over a snapshot
// taken when the scanner is created. Writes committed later are not seen.
// A scanner is finite; create a new one to scan again.
type Scanner struct {
	snap *store.Snapshot
	it   *store.Iterator

	key   []byte
	value []byte
	err   error
	done  bool
}

// NewScanner snapshots st and positions the scanner before the first entry
// of scheme's key space. The metadata record is never returned.
func NewScanner(st *store.Store, scheme codec.KeyScheme) (*Scanner, error) {
	snap, err := st.Snapshot()
	if err != nil {
		return nil, err
	}
	it, err := snap.NewIter(scheme.Prefix(), scheme.UpperBound())
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	return &Scanner{snap: snap, it: it}, nil
}

// Next advances to the next entry.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	for s.it.Next() {
		if codec.IsMetaKey(s.it.Key()) {
			continue
		}
		s.key = bytes.Clone(s.it.Key())
		s.value = bytes.Clone(s.it.Value())
		return true
	}
	s.err = s.it.Err()
	s.done = true
	s.key, s.value = nil, nil
	return false
}

// Key returns the current key. The slice is owned by the caller.
func (s *Scanner) Key() []byte {
	return s.key
}

// Value returns the current encoded record. The slice is owned by the
// caller.
func (s *Scanner) Value() []byte {
	return s.value
}

// Err returns the error that ended the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the snapshot.
func (s *Scanner) Close() error {
	if s.it == nil {
		return nil
	}
	err := s.it.Close()
	if cerr := s.snap.Close(); err == nil {
		err = cerr
	}
	s.it, s.snap = nil, nil
	s.done = true
	return err
}
