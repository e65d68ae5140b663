package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/ssargent/datapak/pkg/codec"
)

// Store is an ordered key-value store backed by pebble. Writes go through a
// single Batch at a time; reads go through snapshots and never block the
// writer.
type Store struct {
	db       *pebble.DB
	path     string
	readOnly bool
	sync     bool
	logger   *slog.Logger

	// writeMu is held for the lifetime of an open Batch.
	writeMu sync.Mutex
	closed  atomic.Bool
	gen     atomic.Uint64 // bumped by every successful commit
}

// Open opens (or, unless read-only, creates) the store at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, &OpenError{Path: path, Err: errors.New("store path is empty")}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, &OpenError{Path: path, Err: err}
		}
	}

	db, err := pebble.Open(path, &pebble.Options{
		ReadOnly:         opts.ReadOnly,
		ErrorIfNotExists: opts.ReadOnly,
		Logger:           pebbleLogger{logger: logger},
	})
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	logger.Debug("store opened", "path", path, "read_only", opts.ReadOnly)
	return &Store{
		db:       db,
		path:     path,
		readOnly: opts.ReadOnly,
		sync:     opts.Sync,
		logger:   logger,
	}, nil
}

// Path returns the directory the store lives in.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened without write access.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Begin opens a write transaction. Only one may be open at a time.
func (s *Store) Begin() (Batch, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if !s.writeMu.TryLock() {
		return nil, ErrWriterBusy
	}
	return &txn{s: s, b: s.db.NewIndexedBatch()}, nil
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return get(s.db, key)
}

// Meta returns the store metadata, or ErrNotFound for a store that has never
// completed a write run.
func (s *Store) Meta() (*codec.StoreMeta, error) {
	data, err := s.Get(codec.MetaKey)
	if err != nil {
		return nil, err
	}
	return codec.DecodeMeta(data)
}

// Snapshot returns a consistent read-only view of the store as of now.
func (s *Store) Snapshot() (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &Snapshot{snap: s.db.NewSnapshot()}, nil
}

// Generation returns a counter that changes whenever a batch is committed
// through this handle.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}

// DiskUsage returns the bytes used by the store's files.
func (s *Store) DiskUsage() uint64 {
	if s.closed.Load() {
		return 0
	}
	return s.db.Metrics().DiskSpaceUsage()
}

// Close closes the store. It can be called multiple times.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Debug("store closed", "path", s.path)
	return s.db.Close()
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func get(r reader, key []byte) ([]byte, error) {
	v, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

type txn struct {
	s    *Store
	b    *pebble.Batch
	n    int
	done bool
}

func (t *txn) Has(key []byte) (bool, error) {
	if t.done {
		return false, ErrTxnDone
	}
	_, closer, err := t.b.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (t *txn) Put(key, value []byte) error {
	if t.done {
		return ErrTxnDone
	}
	if len(key) == 0 {
		return &KVError{"invalid key"}
	}
	if err := t.b.Set(key, value, nil); err != nil {
		return err
	}
	t.n++
	return nil
}

func (t *txn) Scan(lower, upper []byte, fn func(key, value []byte) error) error {
	if t.done {
		return ErrTxnDone
	}
	it, err := t.b.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			_ = it.Close()
			return err
		}
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return err
	}
	return it.Close()
}

func (t *txn) Len() int {
	return t.n
}

func (t *txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	defer t.s.writeMu.Unlock()
	defer t.b.Close()

	wo := pebble.NoSync
	if t.s.sync {
		wo = pebble.Sync
	}
	if err := t.b.Commit(wo); err != nil {
		return fmt.Errorf("commit of %d writes failed: %w", t.n, err)
	}
	t.s.gen.Add(1)
	return nil
}

func (t *txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.s.writeMu.Unlock()
	return t.b.Close()
}

// pebbleLogger routes engine log lines into slog.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
	os.Exit(1)
}
