// Package apperror defines the error taxonomy shared by stores, use cases and transports.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without string matching.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// AppError is a business-level failure with a stable kind and a client-safe message.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(kind Kind, msg, field string) *AppError {
	return &AppError{Kind: kind, Message: msg, Field: field}
}

func NotFound(msg string) *AppError     { return New(KindNotFound, msg, "") }
func Unauthorized(msg string) *AppError { return New(KindUnauthorized, msg, "") }
func Conflict(msg string) *AppError     { return New(KindConflict, msg, "") }

func Validation(msg, field string) *AppError { return New(KindValidation, msg, field) }

// Internal wraps an infrastructure error. The message is what callers see; err is kept for logs.
func Internal(msg string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is the text safe to send back to a client. Unknown errors are masked.
func PublicMessage(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
