// Package pack writes dataset entries into a store in bounded, atomic
// batches.
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/enumerate"
	"github.com/ssargent/datapak/pkg/metrics"
	"github.com/ssargent/datapak/pkg/report"
	"github.com/ssargent/datapak/pkg/store"
)

// DefaultBatchSize is the number of entries committed per transaction when
// Options.BatchSize is unset.
const DefaultBatchSize = 1000

// Backend is the part of a store the writer needs. *store.Store satisfies
// it.
type Backend interface {
	Begin() (store.Batch, error)
	Meta() (*codec.StoreMeta, error)
}

// Source yields dataset entries. Next returns io.EOF at the end and an
// *enumerate.EntryError for entries that cannot be packed.
type Source interface {
	Next(ctx context.Context) (enumerate.Entry, error)
}

// Options configures a Writer.
type Options struct {
	BatchSize     int
	Policy        Policy
	KeyScheme     codec.KeyScheme
	Checksum      codec.Algorithm
	RunID         string // defaults to a new KSUID
	ProgressEvery int    // log progress every N entries; 0 disables it
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Writer packs entries into a store.
type Writer struct {
	backend Backend
	codec   *codec.RecordCodec
	opts    Options
	logger  *slog.Logger
}

// NewWriter validates opts and returns a writer for backend.
func NewWriter(backend Backend, opts Options) (*Writer, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Policy == "" {
		opts.Policy = DefaultPolicy
	}
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	if opts.KeyScheme == "" {
		opts.KeyScheme = codec.PathKeys
	}
	if _, err := codec.ParseKeyScheme(string(opts.KeyScheme)); err != nil {
		return nil, err
	}
	if opts.Checksum == "" {
		opts.Checksum = codec.DefaultAlgorithm
	}
	if !opts.Checksum.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm %q", opts.Checksum)
	}
	if opts.RunID == "" {
		opts.RunID = ksuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Writer{
		backend: backend,
		codec:   codec.NewRecordCodec(opts.Checksum),
		opts:    opts,
		logger:  logger.With("run_id", opts.RunID),
	}, nil
}

// RunID returns the id stamped into the summary and the store metadata.
func (w *Writer) RunID() string {
	return w.opts.RunID
}

type pendingEntry struct {
	key     []byte
	value   []byte
	relPath string
	size    int64
}

type run struct {
	summary   *report.Summary
	meta      *codec.StoreMeta
	stored    bool // meta was read from the store rather than created
	committed int
	seen      int
}

// Write drains src into the store. Per-entry problems are recorded in the
// returned summary. The returned error is non-nil only for run-level
// failures: metadata mismatch, a failed commit or cancellation. The summary
// is returned in every case.
//
// Store metadata is updated in its own transaction after the last batch,
// and only when the run completes.
func (w *Writer) Write(ctx context.Context, src Source) (*report.Summary, error) {
	r := &run{summary: report.New(metrics.OperationWrite, w.opts.RunID)}
	defer r.summary.Finish()

	meta, stored, err := w.loadMeta()
	if err != nil {
		return r.summary, err
	}
	r.meta, r.stored = meta, stored

	if ex, ok := src.(interface{ Excluded() int }); ok {
		for i := 0; i < ex.Excluded(); i++ {
			r.summary.Exclude()
		}
	}

	w.logger.Info("pack started",
		"batch_size", w.opts.BatchSize,
		"policy", w.opts.Policy,
		"key_scheme", w.opts.KeyScheme,
		"checksum", w.opts.Checksum)

	batch := make([]pendingEntry, 0, w.opts.BatchSize)
	for {
		if len(batch) == w.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				w.logger.Warn("pack cancelled", "committed", r.committed)
				return r.summary, err
			}
			if err := w.flush(r, batch); err != nil {
				return r.summary, err
			}
			batch = batch[:0]
		}

		entry, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn("pack cancelled", "committed", r.committed, "dropped", len(batch))
			return r.summary, err
		}
		var entryErr *enumerate.EntryError
		if errors.As(err, &entryErr) {
			w.recordSourceError(r, entryErr)
			continue
		}
		if err != nil {
			return r.summary, fmt.Errorf("failed to read dataset: %w", err)
		}

		p, err := w.encode(entry)
		if err != nil {
			r.summary.Record(report.Failure{Path: entry.RelPath, Kind: report.KindReadError, Err: err})
			w.opts.Metrics.RecordEntry(metrics.OperationWrite, string(report.KindReadError), 0)
			continue
		}
		batch = append(batch, p)
	}

	if len(batch) > 0 {
		if err := ctx.Err(); err != nil {
			w.logger.Warn("pack cancelled", "committed", r.committed)
			return r.summary, err
		}
		if err := w.flush(r, batch); err != nil {
			return r.summary, err
		}
	}

	if err := w.writeMeta(r); err != nil {
		return r.summary, err
	}

	w.logger.Info("pack finished",
		"succeeded", r.summary.Succeeded(),
		"skipped", r.summary.Skipped(),
		"failed", r.summary.Failed(),
		"bytes", humanize.IBytes(uint64(r.summary.Bytes())),
		"entries_in_store", r.meta.EntryCount)
	return r.summary, nil
}

func (w *Writer) loadMeta() (*codec.StoreMeta, bool, error) {
	meta, err := w.backend.Meta()
	if errors.Is(err, store.ErrNotFound) {
		return codec.NewStoreMeta(w.opts.KeyScheme, w.opts.Checksum), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read store metadata: %w", err)
	}
	if err := meta.Compatible(w.opts.KeyScheme, w.opts.Checksum); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (w *Writer) encode(entry enumerate.Entry) (pendingEntry, error) {
	key, err := w.opts.KeyScheme.Key(entry.RelPath, entry.Ordinal)
	if err != nil {
		return pendingEntry{}, err
	}
	value, err := w.codec.Encode(entry.RelPath, entry.Payload, entry.Checksum)
	if err != nil {
		return pendingEntry{}, err
	}
	return pendingEntry{key: key, value: value, relPath: entry.RelPath, size: entry.Size}, nil
}

func (w *Writer) recordSourceError(r *run, err *enumerate.EntryError) {
	kind := report.KindReadError
	var tooLarge *enumerate.EntryTooLargeError
	if errors.As(err, &tooLarge) {
		kind = report.KindEntryTooLarge
	}
	w.logger.Warn("entry not packed", "path", err.RelPath, "kind", kind, "error", err.Err)
	r.summary.Record(report.Failure{Path: err.RelPath, Kind: kind, Err: err.Err})
	w.opts.Metrics.RecordEntry(metrics.OperationWrite, string(kind), 0)
	w.progress(r)
}

// flush writes one batch in a single transaction.
func (w *Writer) flush(r *run, batch []pendingEntry) error {
	start := time.Now()
	first, last := batch[0].relPath, batch[len(batch)-1].relPath
	fatal := func(txn store.Batch, err error) error {
		if txn != nil {
			_ = txn.Abort()
		}
		w.opts.Metrics.RecordBatch(false, len(batch), time.Since(start))
		w.logger.Error("batch commit failed", "first", first, "last", last, "error", err)
		return &BatchCommitError{First: first, Last: last, Committed: r.committed, Err: err}
	}

	txn, err := w.backend.Begin()
	if err != nil {
		return fatal(nil, err)
	}

	var written []pendingEntry
	var duplicates []pendingEntry
	for _, p := range batch {
		exists, err := txn.Has(p.key)
		if err != nil {
			return fatal(txn, err)
		}
		if exists {
			switch w.opts.Policy {
			case PolicyFail, PolicySkip:
				duplicates = append(duplicates, p)
				continue
			}
		}
		if err := txn.Put(p.key, p.value); err != nil {
			return fatal(txn, err)
		}
		written = append(written, p)
	}

	for _, d := range duplicates {
		r.summary.Record(report.Failure{
			Key:  string(d.key),
			Path: d.relPath,
			Kind: report.KindDuplicateKey,
			Err:  &DuplicateKeyError{Key: string(d.key), RelPath: d.relPath},
		})
		w.opts.Metrics.RecordEntry(metrics.OperationWrite, string(report.KindDuplicateKey), 0)
	}

	if w.opts.Policy == PolicyFail && len(duplicates) > 0 {
		if err := txn.Abort(); err != nil {
			return fatal(nil, err)
		}
		for _, p := range written {
			r.summary.Record(report.Failure{
				Key:  string(p.key),
				Path: p.relPath,
				Kind: report.KindBatchAborted,
				Err:  fmt.Errorf("batch aborted: %d duplicate keys", len(duplicates)),
			})
			w.opts.Metrics.RecordEntry(metrics.OperationWrite, string(report.KindBatchAborted), 0)
		}
		w.opts.Metrics.RecordBatch(false, len(batch), time.Since(start))
		w.logger.Warn("batch aborted on duplicate keys",
			"first", first, "last", last, "duplicates", len(duplicates))
		r.seen += len(batch)
		return nil
	}

	if len(written) == 0 {
		_ = txn.Abort()
	} else if err := txn.Commit(); err != nil {
		return fatal(nil, err)
	}

	for _, p := range written {
		r.summary.Succeed(p.size)
		w.opts.Metrics.RecordEntry(metrics.OperationWrite, "succeeded", p.size)
	}
	r.committed += len(written)
	w.opts.Metrics.RecordBatch(true, len(written), time.Since(start))
	w.logger.Debug("batch committed",
		"first", first,
		"last", last,
		"entries", len(written),
		"duplicates", len(duplicates),
		"duration", time.Since(start))

	before := r.seen
	r.seen += len(batch)
	if every := w.opts.ProgressEvery; every > 0 && r.seen/every > before/every {
		w.logger.Info("pack progress", "entries", r.seen, "committed", r.committed)
	}
	return nil
}

func (w *Writer) progress(r *run) {
	r.seen++
	if every := w.opts.ProgressEvery; every > 0 && r.seen%every == 0 {
		w.logger.Info("pack progress", "entries", r.seen, "committed", r.committed)
	}
}

// writeMeta recounts the entries in the store and records the run. The
// count covers batches committed by earlier runs that never reached this
// step. A run that changed nothing leaves the metadata untouched.
func (w *Writer) writeMeta(r *run) error {
	txn, err := w.backend.Begin()
	if err != nil {
		return fmt.Errorf("failed to write store metadata: %w", err)
	}

	var entries, total uint64
	err = txn.Scan(w.opts.KeyScheme.Prefix(), w.opts.KeyScheme.UpperBound(), func(_, value []byte) error {
		entries++
		if rec, err := w.codec.Decode(value); err == nil {
			total += rec.Length
		}
		return nil
	})
	if err != nil {
		_ = txn.Abort()
		return fmt.Errorf("failed to count store entries: %w", err)
	}

	if r.stored && r.committed == 0 && entries == r.meta.EntryCount && total == r.meta.TotalBytes {
		w.logger.Debug("store unchanged, metadata left as is", "entries", entries)
		return txn.Abort()
	}

	meta := *r.meta
	meta.EntryCount = entries
	meta.TotalBytes = total
	meta.UpdatedAt = time.Now().UTC()
	meta.LastRunID = w.opts.RunID
	meta.Runs++

	data, err := codec.EncodeMeta(&meta)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if err := txn.Put(codec.MetaKey, data); err != nil {
		_ = txn.Abort()
		return fmt.Errorf("failed to write store metadata: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to write store metadata: %w", err)
	}
	r.meta = &meta
	return nil
}
