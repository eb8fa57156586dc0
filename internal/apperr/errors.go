// Package apperr defines the error taxonomy shared by the contents adapter and its
// transports. Every error carries a kind that maps to an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrBadType          = errors.New("bad type")
	ErrBadFormat        = errors.New("bad format")
	ErrBadRequest       = errors.New("bad request")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrNotEmpty         = errors.New("directory not empty")
	ErrInternal         = errors.New("internal error")
)

// Error is a classified failure with a client-facing message.
type Error struct {
	Kind    error
	Message string
}

// New returns an *Error of the given kind with a formatted message.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Message
}

// Is allows errors.Is() to match the sentinel kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Reason returns the short reason phrase sent alongside the message.
func (e *Error) Reason() string {
	return e.Kind.Error()
}

// StatusCode maps the kind to an HTTP status code.
func (e *Error) StatusCode() int {
	return Status(e.Kind)
}

// Status returns the HTTP status for err. Unclassified errors are 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadType), errors.Is(err, ErrBadFormat),
		errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotEmpty):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
