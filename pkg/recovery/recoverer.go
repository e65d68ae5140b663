// Package recovery materializes packed entries back onto the filesystem.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/metrics"
	"github.com/ssargent/datapak/pkg/report"
)

// Source yields encoded records in key order. *scan.Scanner satisfies it.
type Source interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
}

// Options configures a Recoverer.
type Options struct {
	DestinationRoot string
	Overwrite       bool            // replace files that already exist
	Checksum        codec.Algorithm // algorithm the store was written with
	VerifyOnly      bool            // decode and verify, write nothing
	RunID           string
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Recoverer decodes records and writes them under a destination root.
type Recoverer struct {
	opts   Options
	codec  *codec.RecordCodec
	logger *slog.Logger
}

// New returns a recoverer. The destination root is only required when
// files are written.
func New(opts Options) (*Recoverer, error) {
	if opts.Checksum == "" {
		opts.Checksum = codec.DefaultAlgorithm
	}
	if !opts.Checksum.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm %q", opts.Checksum)
	}
	if !opts.VerifyOnly && opts.DestinationRoot == "" {
		return nil, errors.New("destination root is required")
	}
	if opts.RunID == "" {
		opts.RunID = ksuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recoverer{
		opts:   opts,
		codec:  codec.NewRecordCodec(opts.Checksum),
		logger: logger.With("run_id", opts.RunID),
	}, nil
}

func (r *Recoverer) operation() string {
	if r.opts.VerifyOnly {
		return metrics.OperationVerify
	}
	return metrics.OperationRecover
}

// Recover drains src. Per-record problems are recorded in the summary and
// never stop the run; the returned error is non-nil only when the
// destination cannot be opened, the source fails, or ctx is cancelled.
func (r *Recoverer) Recover(ctx context.Context, src Source) (*report.Summary, error) {
	sum := report.New(r.operation(), r.opts.RunID)
	defer sum.Finish()

	var root *os.Root
	if !r.opts.VerifyOnly {
		if err := os.MkdirAll(r.opts.DestinationRoot, 0o755); err != nil {
			return sum, fmt.Errorf("failed to create destination root: %w", err)
		}
		var err error
		root, err = os.OpenRoot(r.opts.DestinationRoot)
		if err != nil {
			return sum, fmt.Errorf("failed to open destination root: %w", err)
		}
		defer root.Close()
	}

	r.logger.Info(r.operation()+" started",
		"destination", r.opts.DestinationRoot,
		"checksum", r.opts.Checksum,
		"overwrite", r.opts.Overwrite)

	for src.Next() {
		if err := ctx.Err(); err != nil {
			r.logger.Warn(r.operation()+" cancelled", "processed", sum.Total())
			return sum, err
		}
		key := string(src.Key())
		rec, err := r.check(src.Value())
		if err == nil && root != nil {
			err = r.materialize(root, rec)
		}
		if err != nil {
			r.fail(sum, key, rec, err)
			continue
		}
		sum.Succeed(int64(len(rec.Payload)))
		r.opts.Metrics.RecordEntry(r.operation(), "succeeded", int64(len(rec.Payload)))
	}
	if err := src.Err(); err != nil {
		return sum, fmt.Errorf("failed to scan store: %w", err)
	}

	r.logger.Info(r.operation()+" finished",
		"succeeded", sum.Succeeded(),
		"skipped", sum.Skipped(),
		"failed", sum.Failed(),
		"bytes", humanize.IBytes(uint64(sum.Bytes())))
	return sum, nil
}

// check decodes and verifies a record and validates its path.
func (r *Recoverer) check(value []byte) (*codec.Record, error) {
	rec, err := r.codec.Decode(value)
	if err != nil {
		return nil, err
	}
	if err := rec.Verify(); err != nil {
		return rec, err
	}
	if err := safePath(rec.Path); err != nil {
		return rec, err
	}
	return rec, nil
}

func (r *Recoverer) fail(sum *report.Summary, key string, rec *codec.Record, err error) {
	f := report.Failure{Key: key, Kind: classify(err), Err: err}
	if rec != nil {
		f.Path = rec.Path
	}
	if f.Kind.Skipped() {
		r.logger.Debug("entry skipped", "key", key, "kind", f.Kind, "error", err)
	} else {
		r.logger.Warn("entry failed", "key", key, "kind", f.Kind, "error", err)
	}
	sum.Record(f)
	r.opts.Metrics.RecordEntry(r.operation(), string(f.Kind), 0)
}

func classify(err error) report.Kind {
	var unsafe *UnsafePathError
	var exists *DestinationExistsError
	switch {
	case errors.Is(err, codec.ErrCorruptRecord):
		return report.KindCorruptRecord
	case errors.Is(err, codec.ErrChecksumMismatch):
		return report.KindChecksumMismatch
	case errors.As(err, &unsafe):
		return report.KindUnsafePath
	case errors.As(err, &exists):
		return report.KindDestinationExists
	default:
		return report.KindWriteError
	}
}

// safePath rejects record paths that must never be joined to the
// destination root.
func safePath(p string) error {
	switch {
	case p == "":
		return &UnsafePathError{Path: p, Reason: "empty"}
	case strings.ContainsRune(p, 0):
		return &UnsafePathError{Path: p, Reason: "contains NUL"}
	case path.IsAbs(p) || filepath.IsAbs(p) || strings.HasPrefix(p, `\`):
		return &UnsafePathError{Path: p, Reason: "absolute"}
	case !filepath.IsLocal(filepath.FromSlash(p)):
		return &UnsafePathError{Path: p, Reason: "escapes the destination root"}
	}
	return nil
}

// materialize writes rec under root through a temporary file and a rename,
// so a reader never sees a partially written file.
func (r *Recoverer) materialize(root *os.Root, rec *codec.Record) error {
	name := filepath.FromSlash(rec.Path)

	if _, err := root.Lstat(name); err == nil {
		if !r.opts.Overwrite {
			return &DestinationExistsError{Path: rec.Path}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	dir := filepath.Dir(name)
	if dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := filepath.Join(dir, "."+filepath.Base(name)+"."+ksuid.New().String()+".tmp")
	f, err := root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = root.Remove(tmp)
		}
	}()

	if _, err := f.Write(rec.Payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := root.Rename(tmp, name); err != nil {
		return err
	}
	committed = true
	return nil
}
