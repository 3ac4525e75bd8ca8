package objstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the category error for reads of missing keys.
	//
	// Implementations return a *NotFoundError that satisfies
	// `errors.Is(err, ErrNotFound)`.
	ErrNotFound = errors.New("object not found")

	// ErrBadData is the category error for caller-input problems. It is
	// always detectable before any destructive action has been taken.
	ErrBadData = errors.New("bad data")

	// ErrStorage is the category error for I/O, permission, and lock
	// failures.
	ErrStorage = errors.New("storage failure")
)

// NotFoundError indicates a read of a key that does not exist.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// BadDataError indicates invalid caller input: a consumed byte source, an
// out-of-range part number, an unknown upload token, or a finalize list
// that fails validation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type BadDataError struct {
	Reason string
	cause  error
}

func (e *BadDataError) Error() string { return e.Reason }

func (e *BadDataError) Is(target error) bool { return target == ErrBadData }

func (e *BadDataError) Unwrap() error { return e.cause }

// StorageError indicates an I/O, permission, or lock failure underneath an
// operation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type StorageError struct {
	Op    string
	Path  string
	cause error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.cause)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.cause }

// NewStorageError wraps cause as a StorageError for the given operation
// and path.
func NewStorageError(op, path string, cause error) error {
	return &StorageError{Op: op, Path: path, cause: cause}
}

func badDataf(format string, args ...any) error {
	return &BadDataError{Reason: fmt.Sprintf(format, args...)}
}

func storageErr(op, path string, cause error) error {
	return NewStorageError(op, path, cause)
}
