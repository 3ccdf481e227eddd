package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an Error for transport-layer status mapping.
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeInternal        Code = "INTERNAL"
)

// Error is the coded error surfaced by services to the transport layer.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause so internal detail survives for logs without leaking to clients.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation reports malformed or missing user input.
func Validation(msg string) error {
	return New(CodeInvalidArgument, msg)
}

// Conflict reports a uniqueness violation, e.g. a taken username.
func Conflict(msg string) error {
	return New(CodeAlreadyExists, msg)
}

// Auth reports invalid credentials or a missing/expired session.
func Auth(msg string) error {
	return New(CodeUnauthenticated, msg)
}

// Store reports a persistence failure. The message stays opaque to callers.
func Store(cause error) error {
	return Wrap(CodeInternal, "storage failure", cause)
}

// CodeOf extracts the Code from err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
