package uiflow

import "time"

// Duration is time.Duration, re-exported for builder signatures.
type Duration = time.Duration

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with FlowBuilder.StepWithRetry and Do.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts and the default
// delay between attempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := DefaultRetryPolicy()
	p.MaxAttempts = maxAttempts
	return RetryBuilder{policy: p}
}

// WithDelay sets the fixed wait between a failed attempt and the next one.
// Negative values are treated as zero.
//
// Example:
//
//	Retry(3).WithDelay(2 * time.Second)
func (r RetryBuilder) WithDelay(d time.Duration) RetryBuilder {
	p := r.policy
	if d < 0 {
		d = 0
	}
	p.Delay = d
	return RetryBuilder{policy: p}
}

// WithAttemptTimeout bounds every single attempt. Zero disables the bound.
func (r RetryBuilder) WithAttemptTimeout(d time.Duration) RetryBuilder {
	p := r.policy
	if d < 0 {
		d = 0
	}
	p.AttemptTimeout = d
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries will still respect MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Delay = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
