package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the session manager and pipeline.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotAuthenticated  ErrorKind = "not_authenticated"
	KindNetwork           ErrorKind = "network"
	KindInvalidCredential ErrorKind = "invalid_credentials"
	KindServerRejected    ErrorKind = "server_rejected"
	KindGenerationFailed  ErrorKind = "generation_failed"
	KindMalformedResponse ErrorKind = "malformed_server_response"
	KindDownloadFailed    ErrorKind = "download_failed"
)

// Error carries a kind and a message that can be shown to the user as is.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error formats the failure for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds an Error without an underlying cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an Error around cause.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the display text for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return err.Error()
}
