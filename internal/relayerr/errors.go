package relayerr

import (
	"errors"
	"fmt"
)

// Code identifies the failure class carried back through an event
// acknowledgment. Values are part of the wire contract.
type Code string

const (
	CodeAuthenticationFailure Code = "authentication_failure"
	CodeHierarchyViolation    Code = "hierarchy_violation"
	CodeValidation            Code = "validation_error"
	CodeNotFound              Code = "not_found"
	CodeInactive              Code = "inactive"
	CodeForbidden             Code = "forbidden"
	CodeWindowExpired         Code = "window_expired"
	CodeNegotiation           Code = "negotiation_error"
	CodeInternal              Code = "internal_error"
)

type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, v ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the failure class from err, defaulting to CodeInternal
// for plain errors.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable reason suitable for an
// acknowledgment payload.
func MessageOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "internal error"
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
