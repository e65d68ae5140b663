// Package report collects the per-entry outcome of a pack or recovery run.
package report

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies a per-entry problem.
type Kind string

const (
	KindEntryTooLarge     Kind = "entry_too_large"
	KindReadError         Kind = "read_error"
	KindDuplicateKey      Kind = "duplicate_key"
	KindBatchAborted      Kind = "batch_aborted"
	KindDestinationExists Kind = "destination_exists"
	KindUnsafePath        Kind = "unsafe_path"
	KindCorruptRecord     Kind = "corrupt_record"
	KindChecksumMismatch  Kind = "checksum_mismatch"
	KindWriteError        Kind = "write_error"
)

// Skipped reports whether entries of this kind count as skipped rather than
// failed. Skips are expected outcomes of the run's policy.
func (k Kind) Skipped() bool {
	switch k {
	case KindEntryTooLarge, KindDuplicateKey, KindDestinationExists:
		return true
	default:
		return false
	}
}

// Failure is one entry that was skipped or failed.
type Failure struct {
	Key  string `json:"key,omitempty"`
	Path string `json:"path,omitempty"`
	Kind Kind   `json:"kind"`
	Err  error  `json:"-"`
}

func (f Failure) String() string {
	target := f.Path
	if target == "" {
		target = f.Key
	}
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, target)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, target, f.Err)
}

// Summary is the result of a run. It is safe for concurrent use.
type Summary struct {
	Operation string
	RunID     string
	Started   time.Time
	Finished  time.Time

	mu        sync.Mutex
	succeeded int
	skipped   int
	failed    int
	excluded  int
	bytes     int64
	failures  []Failure
}

// New starts a summary for the named operation.
func New(operation, runID string) *Summary {
	return &Summary{Operation: operation, RunID: runID, Started: time.Now()}
}

// Succeed records an entry that was fully processed.
func (s *Summary) Succeed(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.bytes += bytes
}

// Exclude records an entry dropped by include/exclude rules. Excluded
// entries are not part of the total.
func (s *Summary) Exclude() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded++
}

// Record adds a skipped or failed entry.
func (s *Summary) Record(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Kind.Skipped() {
		s.skipped++
	} else {
		s.failed++
	}
	s.failures = append(s.failures, f)
}

// Finish stamps the end time.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finished = time.Now()
}

func (s *Summary) Succeeded() int { s.mu.Lock(); defer s.mu.Unlock(); return s.succeeded }
func (s *Summary) Skipped() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.skipped }
func (s *Summary) Failed() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.failed }
func (s *Summary) Excluded() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.excluded }
func (s *Summary) Bytes() int64   { s.mu.Lock(); defer s.mu.Unlock(); return s.bytes }

// Total is the number of entries that reached a decision.
func (s *Summary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded + s.skipped + s.failed
}

// Failures returns a copy of the recorded failures in the order they
// happened.
func (s *Summary) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// CountKind returns how many failures of kind k were recorded.
func (s *Summary) CountKind(k Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.failures {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Ratio formats succeeded/total, e.g. "2/2".
func (s *Summary) Ratio() string {
	return fmt.Sprintf("%d/%d", s.Succeeded(), s.Total())
}

// Duration is the wall time of the run so far, or of the finished run.
func (s *Summary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}
