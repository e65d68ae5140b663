// Package enumerate produces the dataset entries of a pack run: a sorted,
// lazy, restartable sequence of files under a source root.
package enumerate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ssargent/datapak/pkg/codec"
)

// Options configures an Enumerator.
type Options struct {
	Root          string          // Directory the dataset lives in
	ListFile      string          // Optional newline separated relative paths; replaces the walk
	Include       []string        // Globs an entry must match (empty means all)
	Exclude       []string        // Globs that drop an entry
	MaxEntryBytes int64           // Per-entry size limit; 0 disables it
	Checksum      codec.Algorithm // Digest computed for every payload
	Workers       int             // Payload readers; <= 1 reads inline
	Logger        *slog.Logger
}

// Entry is one file ready for encoding.
type Entry struct {
	RelPath  string
	Ordinal  uint64
	Size     int64
	Payload  []byte
	Checksum []byte
}

type candidate struct {
	rel     string
	abs     string
	size    int64
	ordinal uint64
	err     error
}

type loaded struct {
	entry Entry
	err   error
}

// Enumerator walks a dataset. Candidates are collected and sorted when it is
// created; payloads are read lazily by Next.
type Enumerator struct {
	opts       Options
	logger     *slog.Logger
	candidates []candidate
	excluded   int
	pos        int

	// prefetch state, only used with Workers > 1
	pending chan chan loaded
	cancel  context.CancelFunc
}

// New scans the source and returns an enumerator positioned at the first
// entry.
func New(opts Options) (*Enumerator, error) {
	if opts.Checksum == "" {
		opts.Checksum = codec.DefaultAlgorithm
	}
	if !opts.Checksum.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm %q", opts.Checksum)
	}
	for _, p := range append(slices.Clone(opts.Include), opts.Exclude...) {
		if err := ValidatePattern(p); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// the walk does not follow symlinks, so a linked root is resolved first
	root, err := filepath.EvalSymlinks(opts.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, opts.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, opts.Root)
	}
	if root != opts.Root {
		logger.Debug("source root resolved", "root", opts.Root, "resolved", root)
	}
	opts.Root = root

	e := &Enumerator{opts: opts, logger: logger}
	if opts.ListFile != "" {
		err = e.collectList()
	} else {
		err = e.collectWalk()
	}
	if err != nil {
		return nil, err
	}

	slices.SortFunc(e.candidates, func(a, b candidate) int {
		return strings.Compare(a.rel, b.rel)
	})
	for i := range e.candidates {
		e.candidates[i].ordinal = uint64(i)
	}

	logger.Debug("dataset enumerated",
		"root", opts.Root,
		"entries", len(e.candidates),
		"excluded", e.excluded)
	return e, nil
}

func (e *Enumerator) selected(rel string) bool {
	if len(e.opts.Include) > 0 && !MatchAnyPattern(e.opts.Include, rel) {
		return false
	}
	return !MatchAnyPattern(e.opts.Exclude, rel)
}

func (e *Enumerator) collectWalk() error {
	return filepath.WalkDir(e.opts.Root, func(p string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(e.opts.Root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			e.logger.Warn("unreadable path in source", "path", rel, "error", err)
			e.candidates = append(e.candidates, candidate{rel: rel, abs: p, err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel != "." && MatchAnyPattern(e.opts.Exclude, rel) {
				e.excluded += countFiles(p)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			e.logger.Debug("skipping non-regular file", "path", rel, "type", d.Type().String())
			return nil
		}
		if !e.selected(rel) {
			e.excluded++
			return nil
		}

		c := candidate{rel: rel, abs: p}
		if info, err := d.Info(); err != nil {
			c.err = err
		} else {
			c.size = info.Size()
		}
		e.candidates = append(e.candidates, c)
		return nil
	})
}

// countFiles returns the number of regular files under dir. Unreadable
// subtrees are not counted.
func countFiles(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

func (e *Enumerator) collectList() error {
	f, err := os.Open(e.opts.ListFile)
	if err != nil {
		return fmt.Errorf("failed to open list file: %w", err)
	}
	defer f.Close()

	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rel, err := codec.NormalizePath(filepath.ToSlash(line))
		if err != nil {
			e.candidates = append(e.candidates, candidate{rel: line, err: err})
			continue
		}
		if seen[rel] {
			continue
		}
		seen[rel] = true
		if !e.selected(rel) {
			e.excluded++
			continue
		}

		c := candidate{rel: rel, abs: filepath.Join(e.opts.Root, filepath.FromSlash(rel))}
		info, err := os.Lstat(c.abs)
		switch {
		case err != nil:
			c.err = err
		case !info.Mode().IsRegular():
			c.err = fmt.Errorf("not a regular file")
		default:
			c.size = info.Size()
		}
		e.candidates = append(e.candidates, c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read list file: %w", err)
	}
	return nil
}

// Len returns the number of entries the enumeration will produce, including
// entries that will be reported as errors.
func (e *Enumerator) Len() int {
	return len(e.candidates)
}

// Excluded returns the number of files dropped by include/exclude rules.
func (e *Enumerator) Excluded() int {
	return e.excluded
}

// Next returns the next entry. It returns io.EOF after the last entry, an
// *EntryError for an entry that must be skipped, and ctx.Err() when the
// context is cancelled.
func (e *Enumerator) Next(ctx context.Context) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if e.opts.Workers <= 1 {
		if e.pos >= len(e.candidates) {
			return Entry{}, io.EOF
		}
		c := e.candidates[e.pos]
		e.pos++
		return e.load(c)
	}

	if e.pending == nil {
		e.startPrefetch(ctx)
	}
	select {
	case slot, ok := <-e.pending:
		if !ok {
			if err := ctx.Err(); err != nil {
				return Entry{}, err
			}
			return Entry{}, io.EOF
		}
		select {
		case r := <-slot:
			return r.entry, r.err
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// startPrefetch reads payloads ahead of the consumer with a bounded number
// of workers. Results are handed over in candidate order.
func (e *Enumerator) startPrefetch(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.pending = make(chan chan loaded, e.opts.Workers*2)

	candidates := e.candidates[e.pos:]
	pending := e.pending
	go func() {
		defer close(pending)
		sem := make(chan struct{}, e.opts.Workers)
		for _, c := range candidates {
			slot := make(chan loaded, 1)
			select {
			case pending <- slot:
			case <-ctx.Done():
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(c candidate) {
				defer func() { <-sem }()
				entry, err := e.load(c)
				slot <- loaded{entry: entry, err: err}
			}(c)
		}
	}()
}

func (e *Enumerator) load(c candidate) (Entry, error) {
	fail := func(err error) (Entry, error) {
		return Entry{}, &EntryError{RelPath: c.rel, Ordinal: c.ordinal, Err: err}
	}
	if c.err != nil {
		return fail(c.err)
	}
	limit := e.opts.MaxEntryBytes
	if limit > 0 && c.size > limit {
		return fail(&EntryTooLargeError{Size: c.size, Limit: limit})
	}

	f, err := os.Open(c.abs)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return fail(err)
	}
	if limit > 0 && int64(len(payload)) > limit {
		return fail(&EntryTooLargeError{Size: int64(len(payload)), Limit: limit})
	}

	return Entry{
		RelPath:  c.rel,
		Ordinal:  c.ordinal,
		Size:     int64(len(payload)),
		Payload:  payload,
		Checksum: e.opts.Checksum.Sum(payload),
	}, nil
}

// Reset rewinds the enumerator so the identical sequence can be produced
// again. The candidate list is not rescanned.
func (e *Enumerator) Reset() {
	e.Close()
	e.pos = 0
}

// Close stops any prefetching.
func (e *Enumerator) Close() {
	if e.cancel != nil {
		e.cancel()
		for range e.pending {
		}
		e.cancel = nil
	}
	e.pending = nil
}
