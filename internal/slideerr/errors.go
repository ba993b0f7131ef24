// Package slideerr defines the error taxonomy shared by the slide storage engine.
//
// Every failure the engine reports carries one of the sentinel kinds below, so
// callers can branch with errors.Is regardless of which layer produced it:
//
//	if errors.Is(err, slideerr.ErrOutOfBounds) { ... }
//	if slideerr.IsValidation(err) { ... } // any caller-fixable argument error
//
// # Categories
//
//   - Validation: ErrInvalidTile, ErrMisalignedWrite, ErrOutOfBounds and bad
//     dimensions. Always caller-fixable; never retried.
//   - Lookup: ErrNotFound, ErrFileNotFound, ErrUnreadableFormat.
//   - Sequencing: ErrLevelNotReady, ErrIncompleteBaseImage, ErrSessionClosed.
//   - Write-once: ErrDuplicateTile.
//   - Integrity: ErrChecksumMismatch.
//
// Storage I/O failures are not classified here. They are wrapped with %w and
// propagate unchanged so the underlying *os.PathError stays reachable.
package slideerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every argument error (bad coordinates, sizes, alignment).
	ErrValidation = errors.New("invalid argument")

	ErrInvalidTile     = errors.New("tile size does not match tile shape")
	ErrMisalignedWrite = errors.New("write is not aligned to the tile grid")
	ErrOutOfBounds     = errors.New("region out of bounds")

	ErrDuplicateTile = errors.New("tile already written")
	ErrNotFound      = errors.New("tile not found")

	ErrFileNotFound     = errors.New("slide file not found")
	ErrUnreadableFormat = errors.New("unreadable slide format")

	ErrLevelNotReady       = errors.New("pyramid level not finalized")
	ErrIncompleteBaseImage = errors.New("base image incomplete")
	ErrSessionClosed       = errors.New("session closed")

	ErrChecksumMismatch = errors.New("tile checksum mismatch")
)

// Error ties a sentinel kind to the operation that failed.
type Error struct {
	// Op names the failing operation, e.g. "read" or "put".
	Op string
	// Kind is one of the package sentinels.
	Kind error
	// Detail is a human-readable description of the offending values.
	Detail string
	// Err is an optional underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind, the validation category where it applies, and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if isValidationKind(e.Kind) {
		errs = append(errs, ErrValidation)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an *Error for op with a formatted detail message.
func New(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that also carries an underlying cause.
func Wrap(op string, kind error, cause error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// Invalid reports a generic argument error (bad dimensions, bad tile size).
func Invalid(op string, format string, args ...any) *Error {
	return New(op, ErrValidation, format, args...)
}

// IsValidation reports whether err is a caller-fixable argument error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func isValidationKind(kind error) bool {
	switch kind {
	case ErrInvalidTile, ErrMisalignedWrite, ErrOutOfBounds:
		return true
	}
	return false
}
