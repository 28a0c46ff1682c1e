package core

import (
	"errors"
	"fmt"
)

// Base errors for the core package.
var (
	// ErrStaleHandle is returned when a resource handle's generation no
	// longer matches the registry (the resource was recycled).
	ErrStaleHandle = errors.New("stale resource handle: resource was recycled")

	// ErrFrameAborted is returned through the completion callback when a
	// frame was abandoned before submission (e.g. resource exhaustion).
	ErrFrameAborted = errors.New("frame aborted")

	// ErrQueuesExhausted is the fault AllocateQueue panics with when all
	// logical submission queues are in use.
	ErrQueuesExhausted = errors.New("all submission queues are in use")
)

// ConfigurationError represents a caller bug detected at the API boundary:
// invalid flags, invalid descriptor combinations, or a forbidden access
// such as writing an immutable resource after initialization.
type ConfigurationError struct {
	Resource string // Resource or component name (e.g. "Buffer", "Queue")
	Field    string // Field that failed validation
	Message  string // Detailed error message
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Resource, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(resource, field, message string) *ConfigurationError {
	return &ConfigurationError{
		Resource: resource,
		Field:    field,
		Message:  message,
	}
}

// NewConfigurationErrorf creates a new configuration error with a formatted message.
func NewConfigurationErrorf(resource, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Resource: resource,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
