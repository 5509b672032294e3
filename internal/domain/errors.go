package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrSegmentNotFound is returned when a (job_id, ordinal) pair is unknown
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrJobNotCancellable is returned when cancelling a job that already
	// reached a terminal state
	ErrJobNotCancellable = errors.New("job is not in a cancellable state")
)

// ValidationError reports a malformed submission. No job is created when
// one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Reason
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AdapterError is a stage-level synthesis failure scoped to one segment.
// Transient failures (timeouts, temporary resource exhaustion) are retried
// up to the configured attempt limit; permanent ones are not.
type AdapterError struct {
	Stage     string // "image" or "voice"
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s synthesis failed (%s): %v", e.Stage, kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps a synthesis backend failure.
func NewAdapterError(stage string, transient bool, err error) error {
	return &AdapterError{Stage: stage, Transient: transient, Err: err}
}

// CompositionError is an assembly-time failure scoped to the whole job.
type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string {
	return "composition failed: " + e.Err.Error()
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// NewCompositionError wraps a composer failure.
func NewCompositionError(err error) error {
	return &CompositionError{Err: err}
}
