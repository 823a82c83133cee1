package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the base error type for all application errors
type AppError struct {
	Message   string        // Human-readable error message
	Context   *ErrorContext // Rich error context
	Cause     error         // Underlying error (for wrapping)
	ExitCode  ExitCode      // Exit code for CLI
	Retryable bool          // Whether a retry may succeed
}

// Error returns the error message with cause if present
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message with context
func (e *AppError) GetUserMessage() string {
	msg := fmt.Sprintf("ERROR: %s", e.Message)

	if e.Cause != nil {
		msg += fmt.Sprintf("\nCause: %v", e.Cause)
	}

	if e.Context != nil {
		msg += e.Context.Format()
	}

	return msg
}

// NewError creates a new AppError with the given message and exit code
func NewError(message string, exitCode ExitCode) *AppError {
	return &AppError{
		Message:  message,
		ExitCode: exitCode,
	}
}

// WrapError wraps an existing error with additional context
func WrapError(cause error, message string, exitCode ExitCode) *AppError {
	return &AppError{
		Message:  message,
		Cause:    cause,
		ExitCode: exitCode,
	}
}

// WrapErrorWithContext wraps an error with full context
func WrapErrorWithContext(cause error, message string, exitCode ExitCode, context *ErrorContext) *AppError {
	return &AppError{
		Message:  message,
		Context:  context,
		Cause:    cause,
		ExitCode: exitCode,
	}
}

// retryable is implemented by every error type embedding *AppError.
type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err was classified as transient. The outermost
// classified error in the chain decides; unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var r retryable
	if stderrors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// IsRetryable reports the classification of this error.
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// AsAppError extracts the embedded *AppError from any application error.
func AsAppError(err error) (*AppError, bool) {
	type appError interface {
		appError() *AppError
	}
	var ae appError
	if stderrors.As(err, &ae) {
		return ae.appError(), true
	}
	return nil, false
}

func (e *AppError) appError() *AppError {
	return e
}

// ExitCodeOf returns the exit code carried by err, or ExitGeneralError.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	if ae, ok := AsAppError(err); ok {
		return ae.ExitCode
	}
	return ExitGeneralError
}
