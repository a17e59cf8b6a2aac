// SPDX-License-Identifier: MIT

// Package errs defines the tagged error kinds shared by the registry, the
// media-buffer allocator, and the flow graph engine. Kinds are plain Go error
// types classified through Unwrap/errors.Is rather than a panic/exception
// hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// kindMarker is implemented by every tagged error kind so callers can
// classify a wrapped error chain with errors.As against the interface.
type kindMarker interface {
	error
	isKind()
}

// NotFoundError indicates a registry lookup missed (kind, name) entirely.
type NotFoundError struct {
	Op  string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("not found: %s", e.Op)
	}
	return fmt.Sprintf("not found: %s: %v", e.Op, e.Err)
}
func (e *NotFoundError) Unwrap() error { return e.Err }
func (e *NotFoundError) isKind()       {}

// InvalidParamError indicates a parameter string was rejected by a factory's
// capability predicate, or a slot-map index was invalid.
type InvalidParamError struct {
	Op  string
	Err error
}

func (e *InvalidParamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid param: %s", e.Op)
	}
	return fmt.Sprintf("invalid param: %s: %v", e.Op, e.Err)
}
func (e *InvalidParamError) Unwrap() error { return e.Err }
func (e *InvalidParamError) isKind()       {}

// OutOfMemoryError indicates the allocator refused a MediaBuffer allocation.
type OutOfMemoryError struct {
	Op  string
	Err error
}

func (e *OutOfMemoryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("out of memory: %s", e.Op)
	}
	return fmt.Sprintf("out of memory: %s: %v", e.Op, e.Err)
}
func (e *OutOfMemoryError) Unwrap() error { return e.Err }
func (e *OutOfMemoryError) isKind()       {}

// AgainError is a retry signal from an asynchronous codec; it is never
// surfaced to a user as a terminal failure.
type AgainError struct{ Op string }

func (e *AgainError) Error() string { return fmt.Sprintf("again: %s", e.Op) }
func (e *AgainError) isKind()       {}

// EofError marks a terminal end-of-stream condition. It is carried primarily
// by the MediaBuffer EOF flag, but the flag can also surface as this error
// from Source.Read and Codec.FetchOutput.
type EofError struct{ Op string }

func (e *EofError) Error() string { return fmt.Sprintf("eof: %s", e.Op) }
func (e *EofError) isKind()       {}

// IoErrorError wraps a device or stream I/O failure.
type IoErrorError struct {
	Op  string
	Err error
}

func (e *IoErrorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("io error: %s", e.Op)
	}
	return fmt.Sprintf("io error: %s: %v", e.Op, e.Err)
}
func (e *IoErrorError) Unwrap() error { return e.Err }
func (e *IoErrorError) isKind()       {}

// UnimplementedError indicates a concrete stage does not provide an optional
// entry point (e.g. a sync-only codec's SendInput).
type UnimplementedError struct{ Op string }

func (e *UnimplementedError) Error() string { return fmt.Sprintf("unimplemented: %s", e.Op) }
func (e *UnimplementedError) isKind()       {}

// Constructors.
func NewNotFound(op string, cause error) error      { return &NotFoundError{Op: op, Err: cause} }
func NewInvalidParam(op string, cause error) error   { return &InvalidParamError{Op: op, Err: cause} }
func NewOutOfMemory(op string, cause error) error    { return &OutOfMemoryError{Op: op, Err: cause} }
func NewAgain(op string) error                       { return &AgainError{Op: op} }
func NewEof(op string) error                          { return &EofError{Op: op} }
func NewIoError(op string, cause error) error        { return &IoErrorError{Op: op, Err: cause} }
func NewUnimplemented(op string) error               { return &UnimplementedError{Op: op} }

// IsAgain reports whether err is (or wraps) an AgainError.
func IsAgain(err error) bool {
	var a *AgainError
	return errors.As(err, &a)
}

// IsEof reports whether err is (or wraps) an EofError.
func IsEof(err error) bool {
	var e *EofError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidParam reports whether err is (or wraps) an InvalidParamError.
func IsInvalidParam(err error) bool {
	var e *InvalidParamError
	return errors.As(err, &e)
}

// IsUnimplemented reports whether err is (or wraps) an UnimplementedError.
func IsUnimplemented(err error) bool {
	var e *UnimplementedError
	return errors.As(err, &e)
}

// IsKind reports whether err is one of the kinds declared in this package.
func IsKind(err error) bool {
	if err == nil {
		return false
	}
	var km kindMarker
	return errors.As(err, &km)
}
