// Package apperrors implements the error taxonomy from spec.md §7,
// adapting the teacher's types/errors ErrorType enum to the specific
// kinds this system distinguishes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds enumerated in spec.md §7.
type Kind string

const (
	KindTransient             Kind = "TRANSIENT_NETWORK"
	KindAuthoritativeNotFound Kind = "AUTHORITATIVE_NOT_FOUND"
	KindMergeConflict         Kind = "MERGE_CONFLICT"
	KindIntegrity             Kind = "INTEGRITY"
	KindValidation            Kind = "VALIDATION"
	KindRateLimited           Kind = "RATE_LIMITED"
	KindFatal                 Kind = "FATAL"
	KindInternal              Kind = "INTERNAL"
)

var httpStatus = map[Kind]int{
	KindTransient:             http.StatusBadGateway,
	KindAuthoritativeNotFound: http.StatusNotFound,
	KindMergeConflict:         http.StatusConflict,
	KindIntegrity:             http.StatusConflict,
	KindValidation:            http.StatusBadRequest,
	KindRateLimited:           http.StatusTooManyRequests,
	KindFatal:                 http.StatusInternalServerError,
	KindInternal:              http.StatusInternalServerError,
}

// Error is the typed error every package in this system returns instead
// of a bare error, so handlers and the orchestrator can branch on Kind
// without string-matching.
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

// HTTPStatus returns the status code an API handler should answer with.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == k
	}
	return false
}

func Transient(message string, err error) *Error {
	return Wrap(KindTransient, message, err)
}

func NotFound(message string) *Error {
	return New(KindAuthoritativeNotFound, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

func Fatal(message string, err error) *Error {
	return Wrap(KindFatal, message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}
