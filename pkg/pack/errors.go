package pack

import "fmt"

// DuplicateKeyError reports an entry whose key is already in the store.
type DuplicateKeyError struct {
	Key     string
	RelPath string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("key %s already exists", e.Key)
}

// BatchCommitError is returned when a batch could not be committed. Batches
// committed before it remain valid; nothing from the failed batch is
// visible.
type BatchCommitError struct {
	First     string // first relative path in the failed batch
	Last      string // last relative path in the failed batch
	Committed int    // entries committed by earlier batches of this run
	Err       error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch %s..%s failed after %d committed entries: %v", e.First, e.Last, e.Committed, e.Err)
}

func (e *BatchCommitError) Unwrap() error {
	return e.Err
}
