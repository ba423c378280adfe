// Package errors provides coded error types for reconnode. Collaborators and
// the scan engine report failures through these types so callers can decide,
// by code, whether a condition degrades a scan, is retryable by an operator,
// or is fatal at startup.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// Scanning errors.
	CodeScanInProgress  ErrorCode = "SCAN_IN_PROGRESS"
	CodeInvalidState    ErrorCode = "INVALID_STATE"
	CodeDrainTimeout    ErrorCode = "DRAIN_TIMEOUT"
	CodeDiscoveryFailed ErrorCode = "DISCOVERY_FAILED"
	CodeTargetInvalid   ErrorCode = "TARGET_INVALID"

	// Collaborator errors.
	CodeResolveFailed  ErrorCode = "RESOLVE_FAILED"
	CodePublishFailed  ErrorCode = "PUBLISH_FAILED"
	CodeProtocolDecode ErrorCode = "PROTOCOL_DECODE"

	// Storage errors.
	CodeStorageConnection ErrorCode = "STORAGE_CONNECTION"
	CodeStorageQuery      ErrorCode = "STORAGE_QUERY"
	CodeStorageMigration  ErrorCode = "STORAGE_MIGRATION"
	CodeStorageTimeout    ErrorCode = "STORAGE_TIMEOUT"

	// File system errors.
	CodeFilePermission  ErrorCode = "FILE_PERMISSION"
	CodeDirectoryCreate ErrorCode = "DIRECTORY_CREATE"
	CodeAlreadyRunning  ErrorCode = "ALREADY_RUNNING"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
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

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// StorageError represents failures of the scan history backend.
type StorageError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Query     string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// WithQuery records the statement that failed.
func (e *StorageError) WithQuery(query string) *StorageError {
	e.Query = query
	return e
}

// WithOperation records the logical operation that failed.
func (e *StorageError) WithOperation(op string) *StorageError {
	e.Operation = op
	return e
}

// WrapStorageError wraps an existing error as a storage error.
func WrapStorageError(code ErrorCode, message string, err error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// DiscoveryError represents host discovery and name resolution errors.
type DiscoveryError struct {
	Code    ErrorCode
	Message string
	Network string
	Method  string
	Cause   error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Network != "" {
		return fmt.Sprintf("[%s] %s (network: %s)", e.Code, e.Message, e.Network)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// WrapDiscoveryError wraps an existing error as a discovery error.
func WrapDiscoveryError(code ErrorCode, message string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
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

// GetCode extracts the error code from the first coded error in the chain.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Code
	}
	var discoveryErr *DiscoveryError
	if errors.As(err, &discoveryErr) {
		return discoveryErr.Code
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsRetryable reports whether the condition may clear on its own, so the next
// cycle or health check is worth trying.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeStorageConnection, CodeStorageTimeout, CodeDiscoveryFailed,
		CodePublishFailed, CodeDrainTimeout:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error should stop the process at startup.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeValidation, CodeStorageMigration,
		CodeFilePermission, CodeDirectoryCreate, CodeAlreadyRunning:
		return true
	default:
		return false
	}
}

// ErrScanInProgress is returned by surfaces that must report a refused start.
func ErrScanInProgress() *ScanError {
	return NewScanError(CodeScanInProgress, "A scan is already running")
}

// ErrInvalidState reports a lifecycle command issued in the wrong state.
func ErrInvalidState(command, state string) *ScanError {
	return NewScanError(CodeInvalidState, fmt.Sprintf("Cannot %s while %s", command, state)).
		WithContext("command", command).
		WithContext("state", state)
}

// ErrDrainTimeout reports workers still busy when the drain bound expired.
func ErrDrainTimeout(pending int, err error) *ScanError {
	return WrapScanError(CodeDrainTimeout, "Timeout waiting for workers", err).
		WithContext("pending", pending)
}

// ErrDiscoveryFailed creates an error for discovery failures.
func ErrDiscoveryFailed(network string, err error) *DiscoveryError {
	e := WrapDiscoveryError(CodeDiscoveryFailed, "Network discovery failed", err)
	e.Network = network
	return e
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}
