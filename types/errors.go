package types

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for acquisition failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrConfiguration indicates invalid strategy parameters or an invalid
	// strategy composition. Detected at construction wherever possible.
	ErrConfiguration = errors.New("configuration error")

	// ErrLifecycle indicates the apparatus rejected a run-control action
	// (begin, end, pause, resume) or never reached the expected run state.
	ErrLifecycle = errors.New("lifecycle error")

	// ErrTimeout indicates a waiter deadline elapsed before its condition held.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidPoint indicates a degenerate telemetry snapshot
	// (zero frames, zero monitor counts).
	ErrInvalidPoint = errors.New("invalid point")
)

// AcquisitionError wraps an underlying error with its classification.
// It preserves the original error in the chain for inspection via errors.As.
type AcquisitionError struct {
	// Kind is the sentinel error for classification (e.g., ErrLifecycle).
	Kind error
	// Op is the operation that failed (e.g., "begin_run", "wait", "reduce").
	Op string
	// Err is the underlying error, if any.
	Err error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *AcquisitionError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewConfigError creates a configuration error with a formatted cause.
func NewConfigError(op, format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: ErrConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

// NewLifecycleError wraps err as a lifecycle failure of op.
func NewLifecycleError(op string, err error) *AcquisitionError {
	return &AcquisitionError{Kind: ErrLifecycle, Op: op, Err: err}
}

// NewTimeoutError creates a timeout error with a formatted cause.
func NewTimeoutError(op, format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: ErrTimeout, Op: op, Err: fmt.Errorf(format, args...)}
}

// NewInvalidPointError creates an invalid-point error with a formatted cause.
func NewInvalidPointError(op, format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: ErrInvalidPoint, Op: op, Err: fmt.Errorf(format, args...)}
}

// ErrorKind returns a stable label for the classification of err:
// "configuration", "lifecycle", "timeout", "invalid_point", "canceled", or "other".
// Nil yields "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrLifecycle):
		return "lifecycle"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidPoint):
		return "invalid_point"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
