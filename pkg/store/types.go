package store

import (
	"fmt"
	"log/slog"
)

// Options configures how a store is opened.
type Options struct {
	ReadOnly bool         // Open without write access; the store must exist
	Sync     bool         // Fsync every commit before Commit returns
	Logger   *slog.Logger // Receives engine log lines; nil discards them
}

// Batch is a single write transaction. Nothing written through a Batch is
// visible to readers until Commit succeeds, and a failed or aborted batch
// leaves the store untouched.
type Batch interface {
	// Has reports whether key exists in the store or earlier in this batch.
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	// Scan calls fn for every key in [lower, upper), including keys put
	// earlier in this batch. key and value are only valid during the call.
	Scan(lower, upper []byte, fn func(key, value []byte) error) error
	// Len returns the number of Put calls.
	Len() int
	Commit() error
	// Abort discards the batch. It is a no-op after Commit.
	Abort() error
}

// Errors
var (
	ErrNotFound   = &KVError{"key not found"}
	ErrReadOnly   = &KVError{"store is read-only"}
	ErrWriterBusy = &KVError{"a write transaction is already open"}
	ErrTxnDone    = &KVError{"transaction already committed or aborted"}
	ErrClosed     = &KVError{"store is closed"}
)

// KVError represents a key-value store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}

// OpenError is returned when the store cannot be opened. It is fatal to a
// run.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open store at %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
