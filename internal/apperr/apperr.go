// Package apperr defines the error kinds surfaced by the platform. Kinds are translated to
// transport status codes only at the HTTP boundary (pkg/response).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindUnauthenticated           Kind = "unauthenticated"
	KindForbidden                 Kind = "forbidden"
	KindNotFound                  Kind = "not_found"
	KindInvalidInput              Kind = "invalid_input"
	KindConflict                  Kind = "conflict"
	KindAnalysisUnavailable       Kind = "analysis_unavailable"
	KindCorrespondenceUnavailable Kind = "correspondence_unavailable"
	KindTemplateNotConfigured     Kind = "template_not_configured"
	KindStorageFailure            Kind = "storage_failure"
	KindInternal                  Kind = "internal"
)

// Error carries a kind, a caller-safe message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func InvalidInput(message string) *Error { return New(KindInvalidInput, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func TemplateNotConfigured(message string) *Error { return New(KindTemplateNotConfigured, message) }

func AnalysisUnavailable(cause error) *Error {
	return Wrap(KindAnalysisUnavailable, "document analysis unavailable", cause)
}

func CorrespondenceUnavailable(cause error) *Error {
	return Wrap(KindCorrespondenceUnavailable, "correspondence generation unavailable", cause)
}

func StorageFailure(message string, cause error) *Error {
	return Wrap(KindStorageFailure, message, cause)
}

// KindOf returns the kind of err, or KindInternal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err. Errors without a kind get a generic message so
// internal detail never reaches the caller.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
