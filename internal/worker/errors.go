package worker

// RetryableError marks a task failure caused by infrastructure (database,
// storage, broker) rather than by the segment itself. The delivery is
// nacked with requeue so another consumer picks it up.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an error as retryable
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
