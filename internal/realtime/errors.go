package realtime

import (
	"errors"
	"fmt"
)

// Publisher errors.
var (
	ErrUnknownEvent    = errors.New("unknown event name")
	ErrQueueFull       = errors.New("publish queue is full")
	ErrPublisherClosed = errors.New("publisher is closed")
)

// TransportError is a delivery failure of a single transport.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the wrapped failure is worth another attempt.
func (e *TransportError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// IsRetryable checks if an error is retryable. Errors that do not say
// otherwise are retried.
func IsRetryable(err error) bool {
	var r interface {
		IsRetryable() bool
	}
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
