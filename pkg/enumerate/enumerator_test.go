package enumerate

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/datapak/pkg/codec"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func drain(t *testing.T, e *Enumerator) ([]Entry, []*EntryError) {
	t.Helper()
	var entries []Entry
	var failures []*EntryError
	for {
		entry, err := e.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return entries, failures
		}
		var entryErr *EntryError
		if errors.As(err, &entryErr) {
			failures = append(failures, entryErr)
			continue
		}
		require.NoError(t, err)
		entries = append(entries, entry)
	}
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelPath
	}
	return out
}

func TestEnumerator_SortedWithOrdinals(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b/c.jpg": "JPEG",
		"a.txt":   "hello",
		"b/a.jpg": "x",
	})

	e, err := New(Options{Root: root})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 3, e.Len())

	entries, failures := drain(t, e)
	assert.Empty(t, failures)
	assert.Equal(t, []string{"a.txt", "b/a.jpg", "b/c.jpg"}, paths(entries))
	for i, entry := range entries {
		assert.Equal(t, uint64(i), entry.Ordinal)
	}

	assert.Equal(t, []byte("hello"), entries[0].Payload)
	assert.Equal(t, int64(5), entries[0].Size)
	assert.Equal(t, codec.CRC32.Sum([]byte("hello")), entries[0].Checksum)
}

func TestEnumerator_EmptyRoot(t *testing.T) {
	e, err := New(Options{Root: t.TempDir()})
	require.NoError(t, err)

	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestEnumerator_MissingRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestEnumerator_IncludeExclude(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.jpg":         "1",
		"b.png":         "2",
		"tmp/c.jpg":     "3",
		"keep/d.jpg":    "4",
		"keep/notes.md": "5",
	})

	e, err := New(Options{
		Root:    root,
		Include: []string{"*.jpg"},
		Exclude: []string{"tmp"},
	})
	require.NoError(t, err)

	entries, _ := drain(t, e)
	assert.Equal(t, []string{"a.jpg", "keep/d.jpg"}, paths(entries))
	// b.png, keep/notes.md and the file under the pruned tmp directory
	assert.Equal(t, 3, e.Excluded())
}

func TestEnumerator_PrunedDirectoryCountsFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":            "a",
		"cache/x.bin":      "x",
		"cache/deep/y.bin": "y",
	})

	e, err := New(Options{Root: root, Exclude: []string{"cache"}})
	require.NoError(t, err)
	entries, _ := drain(t, e)
	assert.Equal(t, []string{"a.txt"}, paths(entries))
	assert.Equal(t, 2, e.Excluded())
}

func TestEnumerator_BadPattern(t *testing.T) {
	_, err := New(Options{Root: t.TempDir(), Include: []string{"[oops"}})
	assert.Error(t, err)
}

func TestEnumerator_EntryTooLarge(t *testing.T) {
	root := writeTree(t, map[string]string{
		"big.bin":   "0123456789",
		"small.bin": "01",
	})

	e, err := New(Options{Root: root, MaxEntryBytes: 4})
	require.NoError(t, err)

	entries, failures := drain(t, e)
	assert.Equal(t, []string{"small.bin"}, paths(entries))
	require.Len(t, failures, 1)
	assert.Equal(t, "big.bin", failures[0].RelPath)

	var tooLarge *EntryTooLargeError
	require.ErrorAs(t, failures[0], &tooLarge)
	assert.Equal(t, int64(10), tooLarge.Size)
}

func TestEnumerator_SkipsSymlinks(t *testing.T) {
	root := writeTree(t, map[string]string{"real.txt": "r"})
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e, err := New(Options{Root: root})
	require.NoError(t, err)
	entries, _ := drain(t, e)
	assert.Equal(t, []string{"real.txt"}, paths(entries))
}

func TestEnumerator_SymlinkedRoot(t *testing.T) {
	target := writeTree(t, map[string]string{"a.txt": "a", "b/c.jpg": "c"})
	link := filepath.Join(t.TempDir(), "dataset")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e, err := New(Options{Root: link})
	require.NoError(t, err)
	entries, failures := drain(t, e)
	assert.Empty(t, failures)
	assert.Equal(t, []string{"a.txt", "b/c.jpg"}, paths(entries))
}

func TestEnumerator_DanglingRootLink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "dataset")
	if err := os.Symlink(filepath.Join(t.TempDir(), "gone"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := New(Options{Root: link})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestEnumerator_ListFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":   "a",
		"b/c.jpg": "c",
		"d.txt":   "d",
	})
	list := filepath.Join(t.TempDir(), "files.lst")
	require.NoError(t, os.WriteFile(list, []byte("# dataset\nb/c.jpg\n\na.txt\na.txt\nmissing.txt\n../escape\n"), 0o644))

	e, err := New(Options{Root: root, ListFile: list})
	require.NoError(t, err)

	entries, failures := drain(t, e)
	assert.Equal(t, []string{"a.txt", "b/c.jpg"}, paths(entries))
	require.Len(t, failures, 2)
	assert.Equal(t, "../escape", failures[0].RelPath)
	assert.Equal(t, "missing.txt", failures[1].RelPath)
}

func TestEnumerator_Reset(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "1", "b": "2"})
	e, err := New(Options{Root: root})
	require.NoError(t, err)

	first, _ := drain(t, e)
	e.Reset()
	second, _ := drain(t, e)
	assert.Equal(t, first, second)
}

func TestEnumerator_ParallelPreservesOrder(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"e", "a", "d", "c", "b", "f", "h", "g"} {
		files["dir/"+name+".bin"] = name
	}
	root := writeTree(t, files)

	serial, err := New(Options{Root: root, Checksum: codec.XXHash64})
	require.NoError(t, err)
	want, _ := drain(t, serial)

	parallel, err := New(Options{Root: root, Checksum: codec.XXHash64, Workers: 4})
	require.NoError(t, err)
	defer parallel.Close()
	got, _ := drain(t, parallel)

	assert.Equal(t, want, got)
}

func TestEnumerator_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "1"})
	e, err := New(Options{Root: root, Workers: 2})
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
