package api

import (
	"context"
	"time"
)

// Operation is a unit of work executed by an Executor. It may be invoked
// more than once, so it must be idempotent: repeating it after a partial
// failure has to converge on the same observable end state.
type Operation func(ctx context.Context) error

// OperationValue is an Operation that produces a result.
type OperationValue[T any] func(ctx context.Context) (T, error)

// RetryPolicy controls how an operation is retried when it returns an error.
// MaxAttempts includes the first attempt. For example:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Delay is the fixed wait between failed attempts. It is not applied before
// the first attempt or after the last one.
//
// AttemptTimeout, when positive, bounds a single attempt. An attempt that has
// not returned by then counts as failed.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// DefaultRetryPolicy returns the policy used when a caller does not override
// it: 3 attempts, 2s apart, no per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
	}
}

// SingleAttempt is the policy for steps that must not be retried.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Normalize clamps out-of-range fields: MaxAttempts < 1 becomes 1 and
// negative durations become 0.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.AttemptTimeout < 0 {
		p.AttemptTimeout = 0
	}
	return p
}

// AttemptOutcome is the result of a single attempt.
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "success"
	AttemptFailed    AttemptOutcome = "failure"
)

// AttemptRecord describes one execution of an operation within a retry
// sequence.
type AttemptRecord struct {
	// Attempt is 1-based.
	Attempt int
	Outcome AttemptOutcome
	Err     error

	Start   time.Time
	Elapsed time.Duration

	// TimedOut is set when the attempt exceeded RetryPolicy.AttemptTimeout.
	TimedOut bool
}

// Failed reports whether the attempt failed.
func (r AttemptRecord) Failed() bool {
	return r.Outcome == AttemptFailed
}
