package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for engine errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
)

// Workflow error codes
const (
	WORKFLOW_PARSE_FAILED ErrorCode = "WORKFLOW_PARSE_FAILED"
	WORKFLOW_INVALID      ErrorCode = "WORKFLOW_INVALID"
	NODE_EXECUTION_FAILED ErrorCode = "NODE_EXECUTION_FAILED"
)

// Task error codes
const (
	TASK_NOT_FOUND        ErrorCode = "TASK_NOT_FOUND"
	TASK_ALREADY_TERMINAL ErrorCode = "TASK_ALREADY_TERMINAL"
	DELIVERY_FAILED       ErrorCode = "DELIVERY_FAILED"
)

// EngineError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *EngineError) Is(target error) bool {
	var engineErr *EngineError
	if errors.As(target, &engineErr) {
		return e.Code == engineErr.Code
	}
	return false
}

// NewError creates a new non-retryable EngineError with the given code and message.
func NewError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable EngineError with the given code
// and message. Use this for transient errors that may succeed on retry.
func NewRetryableError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WithCause attaches an underlying cause and returns the receiver for chaining.
func (e *EngineError) WithCause(cause error) *EngineError {
	e.Cause = cause
	return e
}

// WrapError creates a new non-retryable EngineError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
