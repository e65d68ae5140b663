package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/ssargent/datapak/pkg/codec"
)

// Snapshot is a point-in-time view of a store. Commits made after the
// snapshot was taken are not visible through it.
type Snapshot struct {
	snap *pebble.Snapshot
}

// Get returns a copy of the value stored under key.
func (sn *Snapshot) Get(key []byte) ([]byte, error) {
	return get(sn.snap, key)
}

// Meta returns the metadata as of the snapshot, or ErrNotFound.
func (sn *Snapshot) Meta() (*codec.StoreMeta, error) {
	data, err := sn.Get(codec.MetaKey)
	if err != nil {
		return nil, err
	}
	return codec.DecodeMeta(data)
}

// NewIter returns an iterator over keys in [lower, upper).
func (sn *Snapshot) NewIter(lower, upper []byte) (*Iterator, error) {
	it, err := sn.snap.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &Iterator{it: it}, nil
}

// Close releases the snapshot.
func (sn *Snapshot) Close() error {
	return sn.snap.Close()
}

// Iterator walks keys in ascending order. Key and Value are only valid until
// the next call to Next.
type Iterator struct {
	it      *pebble.Iterator
	started bool
}

// Next advances the iterator and reports whether it is positioned on a key.
func (i *Iterator) Next() bool {
	if !i.started {
		i.started = true
		return i.it.First()
	}
	return i.it.Next()
}

// SeekGE positions the iterator at the first key >= key. The following Next
// call moves past it.
func (i *Iterator) SeekGE(key []byte) bool {
	i.started = true
	return i.it.SeekGE(key)
}

// Valid reports whether the iterator is positioned on a key.
func (i *Iterator) Valid() bool {
	return i.started && i.it.Valid()
}

func (i *Iterator) Key() []byte {
	return i.it.Key()
}

func (i *Iterator) Value() []byte {
	return i.it.Value()
}

func (i *Iterator) Err() error {
	return i.it.Error()
}

func (i *Iterator) Close() error {
	return i.it.Close()
}
