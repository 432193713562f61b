// Package atkerr defines the error taxonomy shared by every session command
// handler and the IPC transport that turns handler errors into wire
// responses.
package atkerr

import "fmt"

// Code identifies a class of failure, surfaced to clients as error.code.
type Code string

const (
	InvalidArgs       Code = "invalid_args"
	InvalidIndex      Code = "invalid_index"
	FileNotFound      Code = "file_not_found"
	UnsupportedFormat Code = "unsupported_format"
	DecodeError       Code = "decode_error"
	Transport         Code = "transport"
	Internal          Code = "internal"
)

// Error is a taxonomy-tagged error. Handlers return these (or plain errors,
// which the controller maps to Internal) instead of writing to the
// transport directly.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Invalid(format string, args ...any) *Error {
	return New(InvalidArgs, fmt.Sprintf(format, args...))
}

// IndexRange reports index i as out of range for a collection of length n.
func IndexRange(i, n int) *Error {
	return New(InvalidIndex, fmt.Sprintf("index %d out of range [0, %d)", i, n))
}

func NotFound(path string) *Error {
	return New(FileNotFound, fmt.Sprintf("file not found: %s", path))
}

func Unsupported(ext string) *Error {
	return New(UnsupportedFormat, fmt.Sprintf("unsupported format: %s", ext))
}

func Decode(path string, cause error) *Error {
	return Wrap(DecodeError, fmt.Sprintf("failed to decode %s", path), cause)
}

func Internally(cause error) *Error {
	return Wrap(Internal, "internal error", cause)
}

// Payload is the {message, code} shape of the failure response's error field.
type Payload struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`
}

// AsPayload converts any error to the wire error shape, tagging plain
// (non-*Error) errors as Internal.
func AsPayload(err error) Payload {
	if e, ok := err.(*Error); ok {
		return Payload{Message: e.Message, Code: e.Code}
	}
	return Payload{Message: err.Error(), Code: Internal}
}
