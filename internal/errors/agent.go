package errors

import (
	"fmt"
)

// TooManyFailuresError is raised once the failure budget of a conversation
// is spent. It is terminal and never retried.
type TooManyFailuresError struct {
	*AppError
	Attempts int
}

// NewTooManyFailuresError creates a new too-many-failures error
func NewTooManyFailuresError(operation string, attempts int, cause error) *TooManyFailuresError {
	return &TooManyFailuresError{
		AppError: &AppError{
			Message: fmt.Sprintf("Too many failures during %s, aborting after %d attempts", operation, attempts),
			Cause:   cause,
			Context: &ErrorContext{
				Operation:  operation,
				Component:  "Conversation",
				MaxRetries: attempts,
				RetryCount: attempts,
				Suggestions: []string{
					"Check the LLM endpoint and API key",
					"Increase MAX_FAILURES to tolerate more transient errors",
				},
			},
			ExitCode: ExitAgentError,
		},
		Attempts: attempts,
	}
}

// MalformedToolArgumentsError is raised when a function call carries
// arguments that are not a JSON object with a string "query" field
type MalformedToolArgumentsError struct {
	*AppError
	Tool      string
	Arguments string
}

// NewMalformedToolArgumentsError creates a new malformed arguments error
func NewMalformedToolArgumentsError(tool, arguments string, cause error) *MalformedToolArgumentsError {
	return &MalformedToolArgumentsError{
		AppError: &AppError{
			Message: fmt.Sprintf("Malformed arguments for tool '%s'", tool),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Dispatch",
				Component: tool,
				Details: map[string]interface{}{
					"arguments": arguments,
				},
				Recoverable: true,
			},
			ExitCode: ExitAgentError,
		},
		Tool:      tool,
		Arguments: arguments,
	}
}

// UnknownToolError is raised when the model calls a tool that is not registered
type UnknownToolError struct {
	*AppError
	Tool string
}

// NewUnknownToolError creates a new unknown tool error
func NewUnknownToolError(tool string) *UnknownToolError {
	return &UnknownToolError{
		AppError: &AppError{
			Message: fmt.Sprintf("Unknown tool: %s", tool),
			Context: &ErrorContext{
				Operation:   "Tool Dispatch",
				Component:   "Tool Registry",
				Recoverable: true,
			},
			ExitCode: ExitAgentError,
		},
		Tool: tool,
	}
}

// ToolExecutionError is raised when a tool execution fails
type ToolExecutionError struct {
	*AppError
}

// NewToolExecutionError creates a new tool execution error
func NewToolExecutionError(toolName string, cause error) *ToolExecutionError {
	return &ToolExecutionError{
		AppError: &AppError{
			Message: fmt.Sprintf("Tool '%s' execution failed", toolName),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Execution",
				Component: toolName,
				Details: map[string]interface{}{
					"tool": toolName,
				},
				Suggestions: []string{
					"Check the tool's API credentials",
					"Check the error details above",
				},
				Recoverable: true,
			},
			ExitCode: ExitAgentError,
		},
	}
}

// MalformedToolCallsError is raised when the model keeps issuing function
// calls that cannot be dispatched after the tools were withdrawn
type MalformedToolCallsError struct {
	*AppError
}

// NewMalformedToolCallsError creates a new malformed tool calls error
func NewMalformedToolCallsError(count int, cause error) *MalformedToolCallsError {
	return &MalformedToolCallsError{
		AppError: &AppError{
			Message: fmt.Sprintf("Model issued %d undispatchable function calls in a row", count),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Dispatch",
				Component: "Conversation",
				Suggestions: []string{
					"Review the system prompt's tool instructions",
					"Increase MAX_MALFORMED_CALLS",
				},
			},
			ExitCode: ExitAgentError,
		},
	}
}

// StoreError is raised when the message store cannot be read or written
type StoreError struct {
	*AppError
}

// NewStoreError creates a new store error
func NewStoreError(operation string, cause error) *StoreError {
	return &StoreError{
		AppError: &AppError{
			Message: fmt.Sprintf("Message store %s failed", operation),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: operation,
				Component: "SQLite Store",
				Suggestions: []string{
					"Check that DB_PATH points to a writable location",
				},
			},
			ExitCode: ExitStoreError,
		},
	}
}
