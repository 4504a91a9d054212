package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the CLI error codes
type ErrorCode int

const (
	// CodeGeneric represents a generic failure (code 1)
	CodeGeneric ErrorCode = 1
	// CodeInvalidConfig represents an invalid or unreadable configuration (code 2)
	CodeInvalidConfig ErrorCode = 2
	// CodeDeviceUnreachable represents a device control panel that does not answer (code 3)
	CodeDeviceUnreachable ErrorCode = 3
	// CodeSyncFailure represents manual synchronization failures (code 4)
	CodeSyncFailure ErrorCode = 4
	// CodeNotConfigured represents commands executed before `zt100 init` (code 5)
	CodeNotConfigured ErrorCode = 5
)

// CLIError represents a CLI error with a specific error code
type CLIError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewGenericError creates a new generic error (code 1)
func NewGenericError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeGeneric,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a new configuration error (code 2)
func NewConfigError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeInvalidConfig,
		Message: message,
		Cause:   cause,
	}
}

// NewDeviceError creates a new device error (code 3)
func NewDeviceError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeDeviceUnreachable,
		Message: message,
		Cause:   cause,
	}
}

// NewSyncError creates a new sync error (code 4)
func NewSyncError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeSyncFailure,
		Message: message,
		Cause:   cause,
	}
}

// NewNotConfiguredError creates a new not-configured error (code 5)
func NewNotConfiguredError(message string) *CLIError {
	return &CLIError{
		Code:    CodeNotConfigured,
		Message: message,
	}
}

// ExitCode maps err to the process exit status: 0 for nil, the code of the
// first CLIError in the chain, 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return int(cliErr.Code)
	}
	return int(CodeGeneric)
}
