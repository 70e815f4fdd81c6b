// Package apperr defines the failure classes surfaced to API clients.
//
// Domain packages declare their sentinel errors with the constructors below so
// that the HTTP layer can map any error chain to a status code and a stable,
// machine-readable kind without knowing every domain error. Parameterized
// domain errors implement Classified instead.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	// KindConflict reports a lost race against a concurrent writer
	// (agent already claimed, order status changed underneath).
	KindConflict Kind = "conflict"
	KindInternal Kind = "internal"
)

// Classified is implemented by errors that carry a Kind. Their Error text is
// safe to show to clients.
type Classified interface {
	error
	ErrorKind() Kind
}

// Error is a classified failure with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
}

var _ Classified = (*Error)(nil)

func (e *Error) Error() string   { return e.Message }
func (e *Error) ErrorKind() Kind { return e.Kind }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error   { return New(KindValidation, msg) }
func NotFound(msg string) *Error     { return New(KindNotFound, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(KindForbidden, msg) }
func Conflict(msg string) *Error     { return New(KindConflict, msg) }

// Validationf formats a validation error message.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first classified error in the chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if c, ok := find(err); ok {
		return c.ErrorKind()
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err. Unclassified errors
// yield an empty string so internal detail never reaches a client.
func MessageOf(err error) string {
	if c, ok := find(err); ok {
		return c.Error()
	}
	return ""
}

func find(err error) (Classified, bool) {
	if err == nil {
		return nil, false
	}
	var c Classified
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
