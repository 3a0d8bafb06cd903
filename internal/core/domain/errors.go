package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer.
type Kind string

const (
	KindNotFound        Kind = "NotFound"
	KindBadRequest      Kind = "BadRequest"
	KindValidationError Kind = "ValidationError"
	KindInternalServer  Kind = "InternalServerError"
)

// Error is the failure half of every core operation. It can only be built
// through the constructors below, so a failure always carries a kind.
type Error struct {
	kind      Kind
	message   string
	retryable bool
	cause     error
}

func NotFound(message string) *Error {
	return &Error{kind: KindNotFound, message: message}
}

func BadRequest(message string) *Error {
	return &Error{kind: KindBadRequest, message: message}
}

func ValidationError(message string) *Error {
	return &Error{kind: KindValidationError, message: message}
}

func InternalServer(message string, cause error) *Error {
	return &Error{kind: KindInternalServer, message: message, cause: cause}
}

// Retryable marks a transient internal failure (timeout, lost row race).
func Retryable(message string, cause error) *Error {
	return &Error{kind: KindInternalServer, message: message, retryable: true, cause: cause}
}

func (e *Error) Kind() Kind {
	if e.kind == "" {
		return KindInternalServer
	}
	return e.kind
}

func (e *Error) Message() string   { return e.message }
func (e *Error) IsRetryable() bool { return e.retryable }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind(), e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind(), e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind()
	}
	return KindInternalServer
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.retryable
}
