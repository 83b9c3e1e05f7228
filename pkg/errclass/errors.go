package errclass

import (
	"errors"
	"fmt"
)

// ModelError is a stable, machine-readable error class.
type ModelError struct {
	Code    string
	Message string
}

func (e *ModelError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ModelError) Is(target error) bool {
	t, ok := target.(*ModelError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new ModelError with the same Code but a specific message.
func (e *ModelError) WithMessage(msg string) *ModelError {
	return &ModelError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new ModelError with a formatted message.
func (e *ModelError) WithMessagef(format string, args ...any) *ModelError {
	return &ModelError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes. Callers render messages by code, so codes never change.
var (
	ErrNotFound         = &ModelError{Code: "E_NOT_FOUND"}
	ErrCorrupted        = &ModelError{Code: "E_CORRUPTED"}
	ErrNameInvalid      = &ModelError{Code: "E_NAME_INVALID"}
	ErrAlreadyExists    = &ModelError{Code: "E_ALREADY_EXISTS"}
	ErrNameConflict     = &ModelError{Code: "E_NAME_CONFLICT"}
	ErrForbidden        = &ModelError{Code: "E_FORBIDDEN"}
	ErrAuth             = &ModelError{Code: "E_AUTH"}
	ErrPathEscape       = &ModelError{Code: "E_PATH_ESCAPE"}
	ErrUnsupportedMedia = &ModelError{Code: "E_UNSUPPORTED_MEDIA"}
	ErrBadRequest       = &ModelError{Code: "E_BAD_REQUEST"}
)

// Code extracts the stable code from err, or "" when err carries no class.
func Code(err error) string {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
