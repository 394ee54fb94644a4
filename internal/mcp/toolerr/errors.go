// Package toolerr defines the typed failures produced while gating and
// dispatching tool invocations.
package toolerr

import (
	"fmt"
	"strings"

	errors "github.com/Laisky/errors/v2"
)

// Code identifies a machine-stable failure class.
type Code string

const (
	// CodeConfiguration is fatal and only raised while starting up.
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	// CodeAuthentication rejects a credential.
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	// CodeInputValidation rejects arguments before any handler runs.
	CodeInputValidation Code = "INPUT_VALIDATION_ERROR"
	// CodeUpstream wraps a failure reported by an external dependency.
	CodeUpstream Code = "UPSTREAM_ERROR"
	// CodeHandler marks a handler that broke its output contract.
	CodeHandler Code = "HANDLER_ERROR"
	// CodeUnknownTool is returned for unregistered tool names.
	CodeUnknownTool Code = "UNKNOWN_TOOL"
	// CodeMissingConfiguration is raised when a per-invocation binding is absent.
	CodeMissingConfiguration Code = "MISSING_CONFIGURATION"
)

// Error is a typed failure carrying an optional list of offending fields.
type Error struct {
	Code    Code
	Message string
	Fields  []string
	cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "tool error: <nil>"
	}

	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " "))
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}

	return msg
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a typed error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a typed error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to cause, keeping its stack.
func Wrap(cause error, code Code, message string) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// InvalidInput builds an input validation error naming the offending fields.
func InvalidInput(message string, fields ...string) *Error {
	return &Error{Code: CodeInputValidation, Message: message, Fields: fields}
}

// AsError extracts a typed error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code Code) bool {
	if typed, ok := AsError(err); ok {
		return typed.Code == code
	}
	return false
}

// CodeOf returns the code of err, or CodeHandler for untyped errors.
func CodeOf(err error) Code {
	if typed, ok := AsError(err); ok {
		return typed.Code
	}
	return CodeHandler
}

// Render formats err as a client-facing "<CODE>: message" string.
func Render(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", CodeOf(err), err.Error())
}
