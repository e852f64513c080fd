package queue

import "context"

// Provider dispatches a rendered message to a destination address.
// Implementations classify failures via IsRetryable (see RetryableError);
// errors without a classification are treated as retryable.
type Provider interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// Send delivers text to destination and returns the provider-side
	// message id when available.
	Send(ctx context.Context, destination, text string) (externalID string, err error)
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a transient error: the item stays pending and is
// retried with backoff until its attempt limit.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewPermanentError creates a fatal error: the item fails immediately,
// skipping any remaining attempts.
func NewPermanentError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
