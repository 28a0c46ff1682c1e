package hal

import (
	"errors"
	"fmt"
)

// Base errors for the hal package.
var (
	// ErrDeviceLost is returned when the device is lost (driver crash, GPU reset).
	ErrDeviceLost = errors.New("device lost")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	// The scheduler aborts the current frame when it surfaces during
	// materialization.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrEncoderOpen is returned when beginning an encoder while another is
	// still recording on the same command buffer.
	ErrEncoderOpen = errors.New("an encoder is already recording")

	// ErrCommandBufferCommitted is returned when recording into a committed
	// command buffer.
	ErrCommandBufferCommitted = errors.New("command buffer already committed")
)

// SubmitError wraps a queue submission failure. It is delivered through the
// command buffer's completion callback.
type SubmitError struct {
	Label string // Command buffer label
	Cause error  // Underlying backend error
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	label := e.Label
	if label == "" {
		label = "<unnamed>"
	}
	return fmt.Sprintf("command buffer %q: submit failed: %v", label, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SubmitError) Unwrap() error {
	return e.Cause
}

// IsSubmitError returns true if the error is a SubmitError.
func IsSubmitError(err error) bool {
	var se *SubmitError
	return errors.As(err, &se)
}

// AllocationError wraps a transient registry allocation failure with the
// resource it was materializing.
type AllocationError struct {
	Key   ResourceKey
	Label string
	Cause error
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	label := e.Label
	if label == "" {
		label = "<unnamed>"
	}
	return fmt.Sprintf("resource %q: allocation failed: %v", label, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AllocationError) Unwrap() error {
	return e.Cause
}

// IsAllocationError returns true if the error is an AllocationError.
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}
