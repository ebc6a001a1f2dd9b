// Package apperr defines the error taxonomy shared by the engine and the API.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for retry decisions and HTTP mapping.
type Kind string

const (
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation"
	KindTransport    Kind = "transport"
	KindCredential   Kind = "credential"
	KindModel        Kind = "model"
	KindTimeout      Kind = "timeout"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidState reports an operation attempted in the wrong lifecycle state.
func InvalidState(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or disallowed input.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a lost compare-and-swap.
func Conflict(op, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps an email transport failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: "email transport failed", Retryable: true, Err: err}
}

// Credential wraps a mailbox authentication failure.
func Credential(op string, err error) *Error {
	return &Error{Kind: KindCredential, Op: op, Message: "mailbox credentials rejected", Retryable: true, Err: err}
}

// Model wraps a language model failure.
func Model(op string, err error) *Error {
	return &Error{Kind: KindModel, Op: op, Message: "language model call failed", Retryable: true, Err: err}
}

// MalformedOutput reports structured model output that failed validation.
func MalformedOutput(op, format string, args ...any) *Error {
	return &Error{Kind: KindModel, Op: op, Message: "malformed structured output: " + fmt.Sprintf(format, args...), Retryable: true}
}

// Timeout wraps a call that exceeded its deadline.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: "operation timed out", Retryable: true, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the failure may succeed on a human-triggered retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Classify converts an arbitrary failure from a model or transport call into
// a classified error. Deadline errors become timeouts regardless of origin.
func Classify(op string, err error, fallback func(string, error) *Error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op, err)
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return fallback(op, err)
}
