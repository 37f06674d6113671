package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeSessionInvalid      = "SESSION_INVALID"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeImageFailed         = "IMAGE_FAILED"
	CodeTimeout             = "TIMEOUT"
)

// LoomError is a structured error with a code and actionable suggestion.
type LoomError struct {
	Code       string // machine-readable code (e.g. STORAGE_UNAVAILABLE)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *LoomError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *LoomError) Unwrap() error {
	return e.Err
}

// New creates a LoomError with the given code and message.
func New(code, message string) *LoomError {
	return &LoomError{Code: code, Message: message}
}

// Wrap creates a LoomError wrapping an existing error.
func Wrap(code, message string, err error) *LoomError {
	return &LoomError{Code: code, Message: message, Err: err}
}

// WithSuggestion returns a copy with the suggestion set.
func (e *LoomError) WithSuggestion(suggestion string) *LoomError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *LoomError) Is(target error) bool {
	var le *LoomError
	if errors.As(target, &le) {
		return e.Code == le.Code
	}
	return false
}

// AsCode extracts the LoomError code from an error, or "" if not a LoomError.
func AsCode(err error) string {
	var le *LoomError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a LoomError.
func Suggestion(err error) string {
	var le *LoomError
	if errors.As(err, &le) {
		return le.Suggestion
	}
	return ""
}
