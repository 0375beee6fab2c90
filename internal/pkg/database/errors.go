package database

import "errors"

// RetryableError marks a persistence failure the submission gate may
// retry. Retries are only safe because every write behind the gate is
// idempotent by key.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable persistence error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// MarkRetryable wraps err so the gate recognizes it as transient.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in
// its chain.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
