package recovery

import "fmt"

// UnsafePathError reports a record whose path would land outside the
// destination root.
type UnsafePathError struct {
	Path   string
	Reason string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
}

// DestinationExistsError reports a file that is already present and was
// left alone.
type DestinationExistsError struct {
	Path string
}

func (e *DestinationExistsError) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}
