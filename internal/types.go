// internal/types.go - Common types for internal packages
package internal

import "errors"

// Error represents application-specific errors
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err or any error in its chain carries the given code
func IsCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		if appErr.Cause != nil {
			return IsCode(appErr.Cause, code)
		}
	}
	return false
}

// ErrorCode constants for common error types
const (
	ErrorCodeConfig     = "CONFIG_ERROR"
	ErrorCodeIO         = "IO_ERROR"
	ErrorCodeDecode     = "DECODE_ERROR"
	ErrorCodeProjection = "PROJECTION_ERROR"
	ErrorCodeShape      = "SHAPE_ERROR"
)
