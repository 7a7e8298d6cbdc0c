package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the engine's failure categories.
type Kind string

const (
	KindForbidden          Kind = "forbidden"
	KindBadRequest         Kind = "bad_request"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindInternal           Kind = "internal"
)

// Error is a classified engine error. Details optionally carries structured
// diagnostics, e.g. the validator's per-field error list.
type Error struct {
	Kind    Kind
	Message string
	Details []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Forbiddenf creates a Forbidden error with a formatted message.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// BadRequestf creates a BadRequest error with a formatted message.
func BadRequestf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PreconditionFailedf creates a PreconditionFailed error with a formatted message.
func PreconditionFailedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an Internal error with a formatted message.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of the error carrying structured diagnostics.
func (e *Error) WithDetails(details ...string) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: details}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

func is(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// IsForbidden reports whether err is a Forbidden error.
func IsForbidden(err error) bool { return is(err, KindForbidden) }

// IsBadRequest reports whether err is a BadRequest error.
func IsBadRequest(err error) bool { return is(err, KindBadRequest) }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsPreconditionFailed reports whether err is a PreconditionFailed error.
func IsPreconditionFailed(err error) bool { return is(err, KindPreconditionFailed) }
