// Package status defines the error taxonomy shared by all merge layers.
//
// Every error produced by the merge packages wraps exactly one of the kind
// sentinels below, so callers classify failures with errors.Is regardless of
// how much context intermediate layers added:
//
//	if errors.Is(err, status.ErrCorruption) { ... }
//
// Layers add context with fmt.Errorf("...: %w", err) and return the first
// failure; nothing in the merge core retries.
package status

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgs is returned for malformed configuration or call contracts.
	ErrInvalidArgs = errors.New("invalid args")

	// ErrCorruption is returned when inputs are inconsistent (missing doc mapper,
	// missing indexer, non-monotonic mapping, checksum mismatch).
	ErrCorruption = errors.New("corruption")

	// ErrIO wraps underlying filesystem or object store failures.
	ErrIO = errors.New("io error")

	// ErrNotFound is returned when a named file, resource or index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnimplemented is returned for unsupported type combinations.
	ErrUnimplemented = errors.New("unimplemented")
)

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// InvalidArgsf returns an ErrInvalidArgs error.
func InvalidArgsf(format string, args ...any) error {
	return &kindError{kind: ErrInvalidArgs, msg: fmt.Sprintf(format, args...)}
}

// Corruptionf returns an ErrCorruption error.
func Corruptionf(format string, args ...any) error {
	return &kindError{kind: ErrCorruption, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns an ErrNotFound error.
func NotFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Unimplementedf returns an ErrUnimplemented error.
func Unimplementedf(format string, args ...any) error {
	return &kindError{kind: ErrUnimplemented, msg: fmt.Sprintf(format, args...)}
}

// IOError wraps cause as an ErrIO error. It returns nil if cause is nil.
// Errors that already carry a kind are returned with added context only.
func IOError(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if Kind(cause) != nil {
		return fmt.Errorf("%s: %w", msg, cause)
	}
	return &kindError{kind: ErrIO, msg: msg, cause: cause}
}

// Kind returns the kind sentinel carried by err, or nil if err has none.
func Kind(err error) error {
	for _, k := range []error{ErrInvalidArgs, ErrCorruption, ErrIO, ErrNotFound, ErrUnimplemented} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
