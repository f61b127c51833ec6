package access

import (
	"errors"
	"fmt"
)

// Kind classifies the errors returned by the service. The zero value marks
// an internal fault.
type Kind string

const (
	KindInternal           Kind = ""
	KindUnauthenticated    Kind = "unauthenticated"
	KindUnauthorized       Kind = "unauthorized"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a domain error with a machine checkable Kind
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d invalid fields)", e.Kind, e.Message, len(e.Fields))
}

// Is matches another *Error of the same kind, so errors.Is(err, ErrNotFound)
// style checks work against the sentinels below
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons
var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
)

// KindOf returns the Kind of err, or KindInternal when err is not a domain error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
