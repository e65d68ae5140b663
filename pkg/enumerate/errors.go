package enumerate

import (
	"errors"
	"fmt"
)

// ErrSourceNotFound is returned by New when the source root does not exist.
// It is fatal to a run.
var ErrSourceNotFound = errors.New("source not found")

// EntryError wraps a problem with a single entry. The enumeration continues
// past it.
type EntryError struct {
	RelPath string
	Ordinal uint64
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.RelPath, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// EntryTooLargeError reports an entry above the configured size limit.
type EntryTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("entry is %d bytes, limit is %d", e.Size, e.Limit)
}
