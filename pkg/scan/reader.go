package scan

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/store"
)

// ErrNoMeta is returned by Open for a store that has never completed a
// write run.
var ErrNoMeta = errors.New("store has no metadata")

// Reader gives random access to the entries of a store, for training
// pipelines and the HTTP API. Every record it returns has been decoded and
// checksum verified.
//
// Ordinal lookups on a path keyed store (and path lookups on an ordinal
// keyed store) go through an in-memory key index that is built on first use
// and rebuilt after any commit through the store handle.
type Reader struct {
	st       *store.Store
	codec    *codec.RecordCodec
	fallback *codec.StoreMeta // used while the store has no metadata

	mu      sync.Mutex
	meta    *codec.StoreMeta
	built   bool
	indexed uint64   // store generation the index was built at
	keys    [][]byte // entry keys in key order
	paths   []string // relative paths in key order
}

// Open returns a reader for st.
func Open(st *store.Store) (*Reader, error) {
	meta, err := st.Meta()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoMeta
	}
	if err != nil {
		return nil, err
	}
	return &Reader{st: st, meta: meta, codec: codec.NewRecordCodec(meta.Checksum)}, nil
}

// OpenWithFallback returns a reader for st that assumes fallback's key scheme
// and checksum algorithm while the store has no metadata, as after an
// interrupted first write run. Stored metadata always wins.
func OpenWithFallback(st *store.Store, fallback *codec.StoreMeta) (*Reader, error) {
	meta, err := st.Meta()
	if errors.Is(err, store.ErrNotFound) {
		meta = fallback
	} else if err != nil {
		return nil, err
	}
	return &Reader{st: st, meta: meta, fallback: fallback, codec: codec.NewRecordCodec(meta.Checksum)}, nil
}

// Meta returns the most recent store metadata.
func (r *Reader) Meta() (*codec.StoreMeta, error) {
	meta, err := r.st.Meta()
	if errors.Is(err, store.ErrNotFound) && r.fallback != nil {
		meta, err = r.fallback, nil
	}
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.meta = meta
	r.mu.Unlock()
	return meta, nil
}

// Len returns the number of entries recorded in the store metadata. Without
// metadata the entries are counted.
func (r *Reader) Len() (int, error) {
	meta, err := r.Meta()
	if err != nil {
		return 0, err
	}
	if meta == r.fallback {
		keys, _, err := r.index()
		return len(keys), err
	}
	return int(meta.EntryCount), nil
}

// Get returns the record for relPath, or store.ErrNotFound.
func (r *Reader) Get(relPath string) (*codec.Record, error) {
	if r.scheme() == codec.PathKeys {
		key, err := codec.PathKey(relPath)
		if err != nil {
			return nil, err
		}
		return r.load(key)
	}

	want, err := codec.NormalizePath(relPath)
	if err != nil {
		return nil, err
	}
	keys, paths, err := r.index()
	if err != nil {
		return nil, err
	}
	for i, p := range paths {
		if p == want {
			return r.load(keys[i])
		}
	}
	return nil, store.ErrNotFound
}

// At returns the n-th entry in key order, or store.ErrNotFound.
func (r *Reader) At(n uint64) (*codec.Record, error) {
	if r.scheme() == codec.OrdinalKeys {
		return r.load(codec.OrdinalKey(n))
	}
	keys, _, err := r.index()
	if err != nil {
		return nil, err
	}
	if n >= uint64(len(keys)) {
		return nil, store.ErrNotFound
	}
	return r.load(keys[n])
}

// List returns up to limit relative paths with the given prefix, in key
// order. A limit <= 0 means no limit.
func (r *Reader) List(prefix string, limit int) ([]string, error) {
	_, paths, err := r.index()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *Reader) scheme() codec.KeyScheme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta.KeyScheme
}

func (r *Reader) load(key []byte) (*codec.Record, error) {
	data, err := r.st.Get(key)
	if err != nil {
		return nil, err
	}
	rec, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := rec.Verify(); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return rec, nil
}

// index returns the keys and paths of every entry, rebuilding them when a
// batch has been committed since the last build.
func (r *Reader) index() ([][]byte, []string, error) {
	meta, err := r.Meta()
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	gen := r.st.Generation()
	if r.built && r.indexed == gen {
		return r.keys, r.paths, nil
	}

	sc, err := NewScanner(r.st, meta.KeyScheme)
	if err != nil {
		return nil, nil, err
	}
	defer sc.Close()

	keys := make([][]byte, 0, meta.EntryCount)
	paths := make([]string, 0, meta.EntryCount)
	for sc.Next() {
		rec, err := r.codec.Decode(sc.Value())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", sc.Key(), err)
		}
		keys = append(keys, sc.Key())
		paths = append(paths, rec.Path)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	r.keys, r.paths, r.indexed, r.built = keys, paths, gen, true
	return keys, paths, nil
}
