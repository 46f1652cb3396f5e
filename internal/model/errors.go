package model

import (
	"errors"
	"fmt"
)

// ErrCore is the shared parent of every error kind the core raises.
// errors.Is(err, ErrCore) matches any of them.
var ErrCore = errors.New("trans-hub error")

type coreSentinel struct {
	msg string
}

func (e *coreSentinel) Error() string { return e.msg }

func (e *coreSentinel) Is(target error) bool { return target == ErrCore }

var (
	ErrConfiguration  error = &coreSentinel{"invalid configuration"}
	ErrEngineNotFound error = &coreSentinel{"engine not found"}
	ErrAPI            error = &coreSentinel{"engine API failure"}
	ErrStorage        error = &coreSentinel{"storage failure"}
	ErrConflict       error = &coreSentinel{"conflict"}
	ErrValidation     error = &coreSentinel{"invalid input"}
	ErrNotInitialized error = &coreSentinel{"coordinator not initialized"}
)

// StorageError wraps a database-layer failure. Never silently retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage || target == ErrCore
}

// ConflictError reports a unique-constraint violation that indicates a
// bug: uniqueness is supposed to be idempotent by design.
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || target == ErrCore
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrCore
}

// ConfigurationError reports invalid or incompatible configuration,
// surfaced from Initialize or SwitchEngine.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration || target == ErrCore
}

// APIError wraps an engine-side communication failure.
type APIError struct {
	Engine    string
	Err       error
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Engine, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target == ErrAPI || target == ErrCore
}
