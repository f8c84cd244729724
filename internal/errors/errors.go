// Package errors provides structured error handling for devbay operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors across the scanner, supervisor, and tool layers.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Scanning errors.
	CodeScanFailed    ErrorCode = "SCAN_FAILED"
	CodeTargetInvalid ErrorCode = "TARGET_INVALID"
	CodeParse         ErrorCode = "PARSE"

	// External tool and subprocess errors.
	CodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"
	CodeSubprocess      ErrorCode = "SUBPROCESS"

	// Process supervision errors.
	CodeStateConflict ErrorCode = "STATE_CONFLICT"
	CodeSpawnFailed   ErrorCode = "SPAWN_FAILED"
	CodeKillFailed    ErrorCode = "KILL_FAILED"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// ProcessError represents errors from supervised process operations.
type ProcessError struct {
	Code    ErrorCode
	Message string
	Kind    string // supervised process kind ("server", "tunnel")
	Cause   error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[%s] %s (process: %s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// NewProcessError creates a new process error for the given process kind.
func NewProcessError(code ErrorCode, message, kind string) *ProcessError {
	return &ProcessError{Code: code, Message: message, Kind: kind}
}

// WrapProcessError wraps an existing error as a process error.
func WrapProcessError(code ErrorCode, message, kind string, err error) *ProcessError {
	return &ProcessError{Code: code, Message: message, Kind: kind, Cause: err}
}

// ToolError represents errors from external tool invocations.
type ToolError struct {
	Code    ErrorCode
	Message string
	Tool    string
	Stderr  string
	Cause   error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("[%s] %s (tool: %s)", e.Code, e.Message, e.Tool)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// WithStderr attaches the captured diagnostic stream to the error.
func (e *ToolError) WithStderr(stderr string) *ToolError {
	e.Stderr = stderr
	return e
}

// NewToolError creates a new tool error.
func NewToolError(code ErrorCode, message, tool string) *ToolError {
	return &ToolError{Code: code, Message: message, Tool: tool}
}

// WrapToolError wraps an existing error as a tool error.
func WrapToolError(code ErrorCode, message, tool string, err error) *ToolError {
	return &ToolError{Code: code, Message: message, Tool: tool, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *ProcessError:
		return e.Code
	case *ToolError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsUnavailable reports whether the error is the distinguishable
// "external tool not installed" signal, so callers can fall back
// instead of treating it as fatal.
func IsUnavailable(err error) bool {
	return IsCode(err, CodeToolUnavailable)
}

// IsStateConflict reports whether the error is a start-when-running or
// stop-when-not-running conflict.
func IsStateConflict(err error) bool {
	return IsCode(err, CodeStateConflict)
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "invalid target specification", target)
}

// ErrToolNotFound creates an error for a missing external tool.
func ErrToolNotFound(tool string) *ToolError {
	return NewToolError(CodeToolUnavailable, "external tool not found", tool)
}

// ErrAlreadyRunning creates a state-conflict error for an occupied slot.
func ErrAlreadyRunning(kind string) *ProcessError {
	return NewProcessError(CodeStateConflict, "process is already running", kind)
}

// ErrNotRunning creates a state-conflict error for an empty slot.
func ErrNotRunning(kind string) *ProcessError {
	return NewProcessError(CodeStateConflict, "process is not running", kind)
}
