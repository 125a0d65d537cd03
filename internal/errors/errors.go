// Package errors provides structured error handling for lanscope operations.
// It defines error codes and typed errors for scans, configuration, caches and
// identity resolution, plus helpers for classifying errors by code.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// Scan lifecycle errors.
	CodeScanInProgress ErrorCode = "SCAN_IN_PROGRESS"
	CodeProbeFailed    ErrorCode = "PROBE_FAILED"
	CodeTargetInvalid  ErrorCode = "TARGET_INVALID"

	// Resolution and cache errors.
	CodeResolutionFailed ErrorCode = "RESOLUTION_FAILED"
	CodeCacheFailure     ErrorCode = "CACHE_FAILURE"
)

// ScanError represents an error raised by a range scan or a single host probe.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Details   []string
	Cause     error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithOperation records the operation that failed.
func (e *ScanError) WithOperation(op string) *ScanError {
	e.Operation = op
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
	}
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

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// CacheError represents a fault in a cache layer.
type CacheError struct {
	Code      ErrorCode
	Operation string
	Key       string
	Cause     error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("[%s] cache %s failed (key: %s): %v", e.Code, e.Operation, e.Key, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// ResolutionError represents the failure of one identity evidence channel.
type ResolutionError struct {
	Code    ErrorCode
	IP      string
	Channel string
	Cause   error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("[%s] %s lookup failed for %s: %v", e.Code, e.Channel, e.IP, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	var cacheErr *CacheError
	if stderrors.As(err, &cacheErr) {
		return cacheErr.Code
	}
	var resErr *ResolutionError
	if stderrors.As(err, &resErr) {
		return resErr.Code
	}
	return CodeUnknown
}

// IsFatal determines if an error must stop the requested operation.
// Only configuration problems and scan conflicts are fatal.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeScanInProgress:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidRequest creates the error returned when a scan request fails validation.
func ErrInvalidRequest(problems []string) *ScanError {
	e := NewScanError(CodeConfiguration, "Invalid scan request")
	e.Details = problems
	return e
}

// ErrScanInProgress creates the error returned for a concurrent scan attempt.
func ErrScanInProgress() *ScanError {
	return NewScanError(CodeScanInProgress, "Scan in progress")
}

// ErrProbeFailed wraps a per-host probe failure.
func ErrProbeFailed(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeProbeFailed, "Host probe failed", target, err)
}

// ErrCacheFailure wraps a cache fault for the given operation and key.
func ErrCacheFailure(op, key string, err error) *CacheError {
	return &CacheError{Code: CodeCacheFailure, Operation: op, Key: key, Cause: err}
}

// ErrChannelFailed wraps the failure of one resolution channel.
func ErrChannelFailed(channel, ip string, err error) *ResolutionError {
	return &ResolutionError{Code: CodeResolutionFailed, IP: ip, Channel: channel, Cause: err}
}

// ErrProviderUnavailable reports that a forced probe provider cannot run here.
func ErrProviderUnavailable(provider string, err error) *ConfigError {
	e := WrapConfigError(CodeConfiguration, "Probe provider unavailable", err)
	e.Field = "scanning.provider"
	e.Value = provider
	return e
}
