package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyLabel is returned when an action, stabilization or race is
	// started without a diagnostic label.
	ErrEmptyLabel = errors.New("uiflow: label must not be empty")

	// ErrInvalidRace is returned when a race is started with fewer than two
	// signals, duplicate or reserved tags, or a non-positive timeout.
	ErrInvalidRace = errors.New("uiflow: invalid race")
)

// RetryExhausted is returned when every attempt of an operation failed.
// It carries the full attempt history; Unwrap yields the last underlying
// error so errors.Is and errors.As reach the concrete cause.
type RetryExhausted struct {
	Label    string
	Attempts []AttemptRecord
	LastErr  error
}

func (e *RetryExhausted) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("uiflow: %s: failed after %d attempt(s): %v", e.Label, len(e.Attempts), e.LastErr)
}

func (e *RetryExhausted) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted returns the RetryExhausted error wrapped in err, if any.
func IsRetryExhausted(err error) (*RetryExhausted, bool) {
	var re *RetryExhausted
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// AttemptTimeoutError marks an attempt that did not finish within
// RetryPolicy.AttemptTimeout. Err is whatever the operation eventually
// returned, which may be nil if it ignored cancellation and succeeded late.
type AttemptTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *AttemptTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attempt timed out after %s: %v", e.Timeout, e.Err)
	}
	return fmt.Sprintf("attempt timed out after %s", e.Timeout)
}

func (e *AttemptTimeoutError) Unwrap() error {
	return e.Err
}
