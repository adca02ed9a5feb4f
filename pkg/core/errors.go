package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: invalid_event, device_lost, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError carrying the same code, so a copy made by
// WithCause or WithMessage still satisfies errors.Is against the predefined value.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Trace errors
	ErrInvalidTrace = &ExecutionError{
		Category: ErrCategoryTrace,
		Code:     "invalid_trace",
		Message:  "event trace is missing or has no events",
	}
	ErrInvalidEvent = &ExecutionError{
		Category: ErrCategoryTrace,
		Code:     "invalid_event",
		Message:  "event is out of the coordinate range",
	}
	ErrMalformedArtifact = &ExecutionError{
		Category: ErrCategoryTrace,
		Code:     "malformed_artifact",
		Message:  "recorded artifact name does not carry a capture offset",
	}

	// Device errors
	ErrDeviceLost = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "device_lost",
		Message:  "device connection lost",
	}
	ErrCommandFailed = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "command_failed",
		Message:  "device command failed",
	}

	// App errors
	ErrAppCrashed = &ExecutionError{
		Category: ErrCategoryApp,
		Code:     "app_crashed",
		Message:  "application lost focus",
	}
	ErrPackageMissing = &ExecutionError{
		Category: ErrCategoryApp,
		Code:     "package_missing",
		Message:  "package is not installed and could not be installed",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}

	// Recovery errors
	ErrRecoveryTimeout = &ExecutionError{
		Category: ErrCategoryRecovery,
		Code:     "recovery_timeout",
		Message:  "device did not come back after relaunch",
	}
	ErrRecoveryUnavailable = &ExecutionError{
		Category: ErrCategoryRecovery,
		Code:     "recovery_unavailable",
		Message:  "no relaunch command configured",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
