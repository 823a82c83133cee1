package errors

import (
	"fmt"
)

// LLMConnectionError is raised when a completion request cannot be opened
type LLMConnectionError struct {
	*AppError
}

// NewLLMConnectionError creates a new LLM connection error
func NewLLMConnectionError(provider string, cause error) *LLMConnectionError {
	return &LLMConnectionError{
		AppError: &AppError{
			Message: fmt.Sprintf("Failed to connect to LLM provider: %s", provider),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "LLM API Call",
				Component: "LLM Client",
				Details: map[string]interface{}{
					"provider": provider,
				},
				Suggestions: []string{
					"Check your internet connection",
					"Verify the API endpoint is accessible",
					"Try again later (service may be unavailable)",
				},
				Recoverable: true,
			},
			ExitCode:  ExitLLMError,
			Retryable: true,
		},
	}
}

// StreamError is raised when a response stream breaks before its end marker
type StreamError struct {
	*AppError
}

// NewStreamError creates a new stream error
func NewStreamError(provider, reason string, cause error) *StreamError {
	return &StreamError{
		AppError: &AppError{
			Message: fmt.Sprintf("Response stream from %s failed: %s", provider, reason),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Reading completion stream",
				Component: "LLM Client",
				Details: map[string]interface{}{
					"provider": provider,
				},
				Recoverable: true,
			},
			ExitCode:  ExitLLMError,
			Retryable: true,
		},
	}
}

// LLMResponseError is raised when the provider rejects the request or
// answers with something that cannot be parsed. Retrying will not help.
type LLMResponseError struct {
	*AppError
}

// NewLLMResponseError creates a new LLM response error
func NewLLMResponseError(provider, reason string) *LLMResponseError {
	return &LLMResponseError{
		AppError: &AppError{
			Message: fmt.Sprintf("Invalid response from LLM provider: %s", provider),
			Context: &ErrorContext{
				Operation: "Parsing LLM Response",
				Component: "LLM Client",
				Details: map[string]interface{}{
					"provider": provider,
					"reason":   reason,
				},
				Suggestions: []string{
					"Check if the model name is correct",
					"Check if the API key is valid",
					"Report this issue if it persists",
				},
			},
			ExitCode: ExitLLMError,
		},
	}
}

// NewRetryableLLMResponseError marks a provider status (429, 5xx) as transient
func NewRetryableLLMResponseError(provider, reason string) *LLMResponseError {
	err := NewLLMResponseError(provider, reason)
	err.Retryable = true
	err.Context.Recoverable = true
	return err
}
