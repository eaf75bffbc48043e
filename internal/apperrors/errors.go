package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the services.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindInvalidRequest  Kind = "invalid_request"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUpstreamFailure Kind = "upstream_failure"
)

// Error carries a failure kind, an "<operation>.<reason>" code and the underlying cause.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the "<operation>.<reason>" code.
func (e *Error) Code() string {
	return e.code
}

// Reason returns the trailing reason segment of the code.
func (e *Error) Reason() string {
	for index := len(e.code) - 1; index >= 0; index-- {
		if e.code[index] == '.' {
			return e.code[index+1:]
		}
	}
	return e.code
}

// New builds an Error for the operation and reason.
func New(kind Kind, operation, reason string, cause error) error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

func Unauthorized(operation, reason string, cause error) error {
	return New(KindUnauthorized, operation, reason, cause)
}

func Forbidden(operation, reason string, cause error) error {
	return New(KindForbidden, operation, reason, cause)
}

func InvalidRequest(operation, reason string, cause error) error {
	return New(KindInvalidRequest, operation, reason, cause)
}

func NotFound(operation, reason string, cause error) error {
	return New(KindNotFound, operation, reason, cause)
}

func Conflict(operation, reason string, cause error) error {
	return New(KindConflict, operation, reason, cause)
}

// Upstream wraps a storage or collaborator failure.
func Upstream(operation, reason string, cause error) error {
	return New(KindUpstreamFailure, operation, reason, cause)
}

// KindOf extracts the Kind of err. Errors that are not *Error count as upstream failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindUpstreamFailure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ReasonOf returns the reason segment of err, or "internal" for foreign errors.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason()
	}
	return "internal"
}
