package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/enumerate"
	"github.com/ssargent/datapak/pkg/report"
	"github.com/ssargent/datapak/pkg/store"
)

// sliceSource replays a fixed list of entries and errors.
type sliceSource struct {
	items []any
	pos   int
}

func (s *sliceSource) Next(ctx context.Context) (enumerate.Entry, error) {
	if err := ctx.Err(); err != nil {
		return enumerate.Entry{}, err
	}
	if s.pos >= len(s.items) {
		return enumerate.Entry{}, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	if err, ok := item.(error); ok {
		return enumerate.Entry{}, err
	}
	return item.(enumerate.Entry), nil
}

func entry(ordinal uint64, rel, payload string) enumerate.Entry {
	return enumerate.Entry{
		RelPath:  rel,
		Ordinal:  ordinal,
		Size:     int64(len(payload)),
		Payload:  []byte(payload),
		Checksum: codec.CRC32.Sum([]byte(payload)),
	}
}

func source(entries ...enumerate.Entry) *sliceSource {
	s := &sliceSource{}
	for _, e := range entries {
		s.items = append(s.items, e)
	}
	return s
}

func numbered(n int) *sliceSource {
	var entries []enumerate.Entry
	for i := 0; i < n; i++ {
		entries = append(entries, entry(uint64(i), fmt.Sprintf("img/%03d.bin", i), fmt.Sprintf("payload-%d", i)))
	}
	return source(entries...)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data.pak"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWriter(t *testing.T, b Backend, opts Options) *Writer {
	t.Helper()
	w, err := NewWriter(b, opts)
	require.NoError(t, err)
	return w
}

func storedPaths(t *testing.T, s *store.Store) []string {
	t.Helper()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	defer snap.Close()
	it, err := snap.NewIter(codec.PathKeys.Prefix(), codec.PathKeys.UpperBound())
	require.NoError(t, err)
	defer it.Close()

	rc := codec.NewRecordCodec(codec.CRC32)
	var out []string
	for it.Next() {
		rec, err := rc.Decode(it.Value())
		require.NoError(t, err)
		require.NoError(t, rec.Verify())
		out = append(out, rec.Path)
	}
	require.NoError(t, it.Err())
	return out
}

func TestWriter_WritesEntriesAndMeta(t *testing.T) {
	s := openStore(t)
	w := newWriter(t, s, Options{BatchSize: 1})

	sum, err := w.Write(context.Background(), source(
		entry(0, "a.txt", "hello"),
		entry(1, "b/c.jpg", "JPEG"),
	))
	require.NoError(t, err)
	assert.Equal(t, "2/2", sum.Ratio())
	assert.Equal(t, int64(9), sum.Bytes())
	assert.Equal(t, w.RunID(), sum.RunID)

	v, err := s.Get([]byte("p/a.txt"))
	require.NoError(t, err)
	rec, err := codec.NewRecordCodec(codec.CRC32).Decode(v)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), rec.Payload)

	meta, err := s.Meta()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.EntryCount)
	assert.Equal(t, uint64(9), meta.TotalBytes)
	assert.Equal(t, uint64(1), meta.Runs)
	assert.Equal(t, w.RunID(), meta.LastRunID)
	assert.Equal(t, codec.PathKeys, meta.KeyScheme)
}

func TestWriter_OrdinalKeys(t *testing.T) {
	s := openStore(t)
	w := newWriter(t, s, Options{KeyScheme: codec.OrdinalKeys})

	_, err := w.Write(context.Background(), numbered(3))
	require.NoError(t, err)

	_, err = s.Get(codec.OrdinalKey(2))
	assert.NoError(t, err)
	_, err = s.Get([]byte("p/img/002.bin"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriter_Idempotent(t *testing.T) {
	for _, policy := range []Policy{PolicyFail, PolicySkip} {
		t.Run(string(policy), func(t *testing.T) {
			s := openStore(t)

			first, err := newWriter(t, s, Options{BatchSize: 2, Policy: policy}).Write(context.Background(), numbered(5))
			require.NoError(t, err)
			assert.Equal(t, 5, first.Succeeded())
			before := storedPaths(t, s)
			metaBefore, err := s.Get(codec.MetaKey)
			require.NoError(t, err)

			second, err := newWriter(t, s, Options{BatchSize: 2, Policy: policy}).Write(context.Background(), numbered(5))
			require.NoError(t, err)
			assert.Equal(t, 0, second.Succeeded())
			assert.Equal(t, 5, second.Skipped())
			assert.Equal(t, 0, second.Failed())
			assert.Equal(t, 5, second.CountKind(report.KindDuplicateKey))

			assert.Equal(t, before, storedPaths(t, s))
			metaAfter, err := s.Get(codec.MetaKey)
			require.NoError(t, err)
			assert.Equal(t, metaBefore, metaAfter)
			meta, err := s.Meta()
			require.NoError(t, err)
			assert.Equal(t, uint64(5), meta.EntryCount)
			assert.Equal(t, uint64(1), meta.Runs)
		})
	}
}

func TestWriter_FailPolicyAbortsBatch(t *testing.T) {
	s := openStore(t)
	_, err := newWriter(t, s, Options{}).Write(context.Background(), source(entry(0, "a.txt", "old")))
	require.NoError(t, err)

	sum, err := newWriter(t, s, Options{BatchSize: 2}).Write(context.Background(), source(
		entry(0, "a.txt", "new"),
		entry(1, "b.txt", "b"),
		entry(2, "c.txt", "c"),
	))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.CountKind(report.KindDuplicateKey))
	assert.Equal(t, 1, sum.CountKind(report.KindBatchAborted))
	assert.Equal(t, 1, sum.Succeeded())
	assert.Equal(t, []string{"a.txt", "c.txt"}, storedPaths(t, s))

	var dup *DuplicateKeyError
	require.ErrorAs(t, sum.Failures()[0].Err, &dup)
	assert.Equal(t, "p/a.txt", dup.Key)
}

func TestWriter_OverwritePolicy(t *testing.T) {
	s := openStore(t)
	_, err := newWriter(t, s, Options{}).Write(context.Background(), source(entry(0, "a.txt", "old")))
	require.NoError(t, err)

	sum, err := newWriter(t, s, Options{Policy: PolicyOverwrite}).Write(context.Background(), source(
		entry(0, "a.txt", "new"),
		entry(1, "b.txt", "b"),
	))
	require.NoError(t, err)
	assert.Equal(t, "2/2", sum.Ratio())

	v, err := s.Get([]byte("p/a.txt"))
	require.NoError(t, err)
	rec, err := codec.NewRecordCodec(codec.CRC32).Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "new", string(rec.Payload))

	meta, err := s.Meta()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.EntryCount)
}

func TestWriter_RecordsSourceErrors(t *testing.T) {
	s := openStore(t)
	src := source(entry(0, "a.txt", "a"))
	src.items = append(src.items,
		&enumerate.EntryError{RelPath: "big.bin", Ordinal: 1, Err: &enumerate.EntryTooLargeError{Size: 10, Limit: 4}},
		&enumerate.EntryError{RelPath: "gone.bin", Ordinal: 2, Err: os.ErrPermission},
	)

	sum, err := newWriter(t, s, Options{}).Write(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded())
	assert.Equal(t, 1, sum.Skipped())
	assert.Equal(t, 1, sum.Failed())
	assert.Equal(t, 1, sum.CountKind(report.KindEntryTooLarge))
	assert.Equal(t, 1, sum.CountKind(report.KindReadError))
}

// failingBackend fails the failAt-th Put across all batches.
type failingBackend struct {
	*store.Store
	failAt int
	puts   int
}

func (f *failingBackend) Begin() (store.Batch, error) {
	b, err := f.Store.Begin()
	if err != nil {
		return nil, err
	}
	return &failingBatch{Batch: b, backend: f}, nil
}

type failingBatch struct {
	store.Batch
	backend *failingBackend
}

var errInjected = errors.New("injected put failure")

func (b *failingBatch) Put(key, value []byte) error {
	b.backend.puts++
	if b.backend.puts == b.backend.failAt {
		return errInjected
	}
	return b.Batch.Put(key, value)
}

func TestWriter_FailedBatchLeavesNoPartialWrites(t *testing.T) {
	s := openStore(t)
	backend := &failingBackend{Store: s, failAt: 6}

	sum, err := newWriter(t, backend, Options{BatchSize: 4}).Write(context.Background(), numbered(10))
	require.Error(t, err)

	var commitErr *BatchCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, 4, commitErr.Committed)
	assert.Equal(t, "img/004.bin", commitErr.First)
	assert.Equal(t, "img/007.bin", commitErr.Last)
	assert.Equal(t, 4, sum.Succeeded())

	// only the first batch is visible, and no metadata was written
	assert.Equal(t, []string{"img/000.bin", "img/001.bin", "img/002.bin", "img/003.bin"}, storedPaths(t, s))
	_, err = s.Meta()
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the writer slot was released by the abort
	b, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, b.Abort())
}

func TestWriter_Cancelled(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newWriter(t, s, Options{BatchSize: 2}).Write(ctx, numbered(4))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, storedPaths(t, s))
	_, err = s.Meta()
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// cancelAfter cancels its context once n entries have been handed out.
type cancelAfter struct {
	*sliceSource
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) Next(ctx context.Context) (enumerate.Entry, error) {
	if c.pos == c.n {
		c.cancel()
	}
	return c.sliceSource.Next(ctx)
}

func TestWriter_CancelledBetweenBatches(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancelAfter{sliceSource: numbered(6), n: 3, cancel: cancel}
	sum, err := newWriter(t, s, Options{BatchSize: 2}).Write(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)

	// the first batch committed whole; the half-built second one was dropped
	assert.Equal(t, 2, sum.Succeeded())
	assert.Equal(t, []string{"img/000.bin", "img/001.bin"}, storedPaths(t, s))
	_, err = s.Meta()
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriter_CountsEntriesFromInterruptedRun(t *testing.T) {
	for _, policy := range []Policy{PolicySkip, PolicyFail, PolicyOverwrite} {
		t.Run(string(policy), func(t *testing.T) {
			s := openStore(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			src := &cancelAfter{sliceSource: numbered(3), n: 2, cancel: cancel}
			_, err := newWriter(t, s, Options{BatchSize: 1, Policy: policy}).Write(ctx, src)
			require.ErrorIs(t, err, context.Canceled)
			require.Len(t, storedPaths(t, s), 2)

			_, err = newWriter(t, s, Options{BatchSize: 1, Policy: policy}).Write(context.Background(), numbered(3))
			require.NoError(t, err)

			stored := storedPaths(t, s)
			meta, err := s.Meta()
			require.NoError(t, err)
			assert.Len(t, stored, 3)
			assert.Equal(t, uint64(len(stored)), meta.EntryCount)
			assert.Equal(t, uint64(len("payload-0")*3), meta.TotalBytes)
		})
	}
}

func TestWriter_WritesMetaWhenOnlyCountIsStale(t *testing.T) {
	s := openStore(t)
	_, err := newWriter(t, s, Options{}).Write(context.Background(), numbered(1))
	require.NoError(t, err)

	// a batch committed after the last completed run
	b, err := s.Begin()
	require.NoError(t, err)
	value, err := codec.NewRecordCodec(codec.CRC32).Encode("late.bin", []byte("late"), nil)
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("p/late.bin"), value))
	require.NoError(t, b.Commit())

	sum, err := newWriter(t, s, Options{Policy: PolicySkip}).Write(context.Background(), numbered(1))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Succeeded())

	meta, err := s.Meta()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.EntryCount)
	assert.Equal(t, uint64(2), meta.Runs)
}

func TestWriter_RefusesMismatchedStore(t *testing.T) {
	s := openStore(t)
	_, err := newWriter(t, s, Options{}).Write(context.Background(), numbered(1))
	require.NoError(t, err)

	_, err = newWriter(t, s, Options{Checksum: codec.SHA256}).Write(context.Background(), numbered(1))
	assert.ErrorIs(t, err, codec.ErrMetaMismatch)

	_, err = newWriter(t, s, Options{KeyScheme: codec.OrdinalKeys}).Write(context.Background(), numbered(1))
	assert.ErrorIs(t, err, codec.ErrMetaMismatch)
}

func TestWriter_FromEnumerator(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c.jpg"), []byte("JPEG"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.tmp"), []byte("x"), 0o644))

	e, err := enumerate.New(enumerate.Options{Root: root, Exclude: []string{"*.tmp"}})
	require.NoError(t, err)
	defer e.Close()

	s := openStore(t)
	sum, err := newWriter(t, s, Options{BatchSize: 1}).Write(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "2/2", sum.Ratio())
	assert.Equal(t, 1, sum.Excluded())
	assert.Equal(t, []string{"a.txt", "b/c.jpg"}, storedPaths(t, s))
}

func TestNewWriter_Validation(t *testing.T) {
	s := openStore(t)
	_, err := NewWriter(s, Options{BatchSize: -1})
	assert.Error(t, err)
	_, err = NewWriter(s, Options{Policy: "merge"})
	assert.Error(t, err)
	_, err = NewWriter(s, Options{Checksum: "md5"})
	assert.Error(t, err)
	_, err = NewWriter(s, Options{KeyScheme: "hash"})
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)

	p, err = ParsePolicy("overwrite")
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, p)

	_, err = ParsePolicy("nope")
	assert.Error(t, err)
}
