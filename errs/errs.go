// Package errs defines the tagged error type surfaced by every Summa
// operation. Callers branch on the Code rather than on error strings.
package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeAccountFrozen       Code = "ACCOUNT_FROZEN"
	CodeAccountClosed       Code = "ACCOUNT_CLOSED"
	CodeLimitExceeded       Code = "LIMIT_EXCEEDED"
	CodeLockTimeout         Code = "LOCK_TIMEOUT"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeIntegrityViolation  Code = "INTEGRITY_VIOLATION"
	CodeInternal            Code = "INTERNAL"
)

// Error carries a stable code alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match on code equality so sentinel-style comparisons
// work across wrapping layers.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, returning CodeInternal for untagged
// errors and the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Internal wraps an unexpected error. The message shown to callers stays
// generic; the cause is preserved for logs.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}
