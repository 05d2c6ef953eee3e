// Package errs collects the error kinds of spec §7 as concrete, wrappable
// types so callers can branch on kind with errors.As instead of parsing
// messages.
//
// © 2025 arena-cache authors. MIT License.
package errs

import "fmt"

// ValidationError reports malformed input: a bad version, a bad filename, a
// malformed record, an unknown method, or an inconsistent chain-length
// combination. Always fatal at the operation boundary; never retried.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("validation error: %s", e.Op)
	}
	return fmt.Sprintf("validation error: %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidation wraps err as a ValidationError with the given operation
// description.
func NewValidation(op string, err error) *ValidationError {
	return &ValidationError{Op: op, Err: err}
}

// IntegrityError reports that reconstructed content failed its length or
// hash check, that a chain references an unavailable baseline, or that
// header fields are inconsistent across chunks of the same key. Fatal:
// refuse to return data.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("integrity error: %s", e.Op)
	}
	return fmt.Sprintf("integrity error: %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrity wraps err as an IntegrityError with the given operation
// description.
func NewIntegrity(op string, err error) *IntegrityError {
	return &IntegrityError{Op: op, Err: err}
}

// CollisionError reports that two distinct keys hashed to the same keyhash.
// Fatal per-Entry.
type CollisionError struct {
	KeyHash  string
	Existing string
	New      string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("collision error: keyhash %s maps to both %q and %q", e.KeyHash, e.Existing, e.New)
}

// NotFoundReason distinguishes why ReadDataAt found nothing, per spec §8's
// requirement that "before first_known" and "before first_contained" report
// distinct messages.
type NotFoundReason int

const (
	// ReasonNeverKnown means the requested version predates
	// first_known_version: no incarnation at or before it was ever observed.
	ReasonNeverKnown NotFoundReason = iota
	// ReasonFlushed means the requested version predates
	// first_contained_version: it was observed once but has since been
	// flushed out of memory.
	ReasonFlushed
	// ReasonNotYet means the requested version is after last_contained_version:
	// it has not been observed yet.
	ReasonNotYet
)

func (r NotFoundReason) String() string {
	switch r {
	case ReasonNeverKnown:
		return "never known"
	case ReasonFlushed:
		return "flushed"
	case ReasonNotYet:
		return "not yet"
	default:
		return "unknown"
	}
}

// NotFoundError reports that ReadDataAt has no data for the requested
// version, and why.
type NotFoundError struct {
	Key     string
	Version string
	Reason  NotFoundReason
	Detail  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: key %q at version %s (%s): %s", e.Key, e.Version, e.Reason, e.Detail)
}

// TransientFetchError reports an HTTP failure during a polling task.
// Reported to the caller via allow_failure semantics; never escalates past
// the fetcher.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error: %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// StorageError reports a path escape, an already-exists conflict on write,
// or a missing parent directory. Fatal to the single operation; the
// scheduler loop continues.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage error: %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorage wraps err as a StorageError describing op on path.
func NewStorage(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}
