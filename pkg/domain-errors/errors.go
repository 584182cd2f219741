// Package domainerrors defines the coded error values returned across the
// registry. Services translate infrastructure facts (see pkg/platform/sentinel)
// into one of these codes so transports can map them without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodeMalformedIdentifier Code = "malformed_identifier"
	CodeOversizedDocument   Code = "oversized_document"
	CodeInvalidBoxContents  Code = "invalid_box_contents"
	CodeInvalidAddress      Code = "invalid_address"
	CodeInvalidAppID        Code = "invalid_app_id"
	CodeSigningFailed       Code = "signing_failed"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeBoxReferenceMissing Code = "box_reference_missing"
	CodeNotFound            Code = "not_found"
	CodeRejected            Code = "rejected"
	CodeConfirmationTimeout Code = "confirmation_timeout"
	CodeNetwork             Code = "network_error"

	CodeBadRequest  Code = "bad_request"
	CodeRateLimited Code = "rate_limited"
	CodeInternal    Code = "internal_error"
)

// Error is a coded domain error. Err holds the underlying cause, which for
// ledger failures carries the node's own diagnostic text.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without an underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, falling back to err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	}
	return err.Error()
}
