package services

import (
	"errors"
	"fmt"
)

// Error categories surfaced to callers. Every error returned by a service
// method that the caller is expected to handle wraps exactly one of these.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrCrypto         = errors.New("integrity verification failed")
)

// Error carries a category plus a message that is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PublicMessage returns the caller-safe text for err, or "" when err is not a
// categorized service error.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return ""
}
