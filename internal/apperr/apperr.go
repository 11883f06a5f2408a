// Package apperr classifies failures so handlers can map them to HTTP statuses
// without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the class of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindUnauthorized
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing row.
func NotFound(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports bad caller input.
func Validation(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a state that forbids the operation.
func Conflict(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-facing message for err. Internal failures
// keep their full text since the original system surfaced them verbatim.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
