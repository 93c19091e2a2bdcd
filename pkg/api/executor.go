package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Executor runs operations with bounded retries and owns the timing and
// observation hooks shared by Stabilize and Race.
//
// The zero value is not usable; construct with NewExecutor. A nil *Executor
// passed to DoValue, Stabilize or Race is replaced by NewExecutor().
type Executor struct {
	observer Observer
	clock    func() time.Time
	sleep    func(context.Context, time.Duration) error

	pollInterval time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver sets the observer. Defaults to a LoggingObserver on
// slog.Default().
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithClock sets the clock used to timestamp attempts.
func WithClock(f func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.clock = f
	}
}

// WithSleep replaces the context-aware sleep used for retry delays and poll
// intervals. Tests use it to run without wall-clock waits.
func WithSleep(f func(context.Context, time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		e.sleep = f
	}
}

// WithPollInterval sets how often a race evaluates its Check signals.
// Defaults to DefaultCheckInterval.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.pollInterval = d
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.observer == nil {
		e.observer = NewLoggingObserver(nil)
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = SleepContext
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultCheckInterval
	}
	return e
}

// Observer returns the observer events are reported to.
func (e *Executor) Observer() Observer {
	return e.observer
}

// Now returns the executor's current time.
func (e *Executor) Now() time.Time {
	return e.clock()
}

// Sleep waits for d or until ctx is done.
func (e *Executor) Sleep(ctx context.Context, d time.Duration) error {
	return e.sleep(ctx, d)
}

// Do executes op under policy. See DoValue.
func (e *Executor) Do(ctx context.Context, label string, policy RetryPolicy, op Operation) error {
	_, err := DoValue(ctx, e, label, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue executes op up to policy.MaxAttempts times and returns the first
// successful result. Attempts are strictly sequential: a timed-out attempt is
// recorded as failed at its deadline, but the next attempt does not start
// until the operation has actually returned.
//
// When every attempt fails the error is a *RetryExhausted carrying the
// attempt history and the last underlying error.
func DoValue[T any](ctx context.Context, exec *Executor, label string, policy RetryPolicy, op OperationValue[T]) (T, error) {
	var zero T

	if ctx == nil {
		ctx = context.Background()
	}
	if exec == nil {
		exec = NewExecutor()
	}
	if label == "" {
		return zero, ErrEmptyLabel
	}

	policy = policy.Normalize()
	attempts := make([]AttemptRecord, 0, policy.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("uiflow: %s: %w", label, err)
			exec.observer.OnActionDone(ctx, label, attempts, err)
			return zero, err
		}

		start := exec.clock()
		attemptCtx := WithAttemptInfo(ctx, AttemptInfo{
			Label:       label,
			Attempt:     attempt,
			MaxAttempts: policy.MaxAttempts,
		})
		val, err, timedOut := runAttempt(attemptCtx, policy.AttemptTimeout, op)

		rec := AttemptRecord{
			Attempt:  attempt,
			Outcome:  AttemptSucceeded,
			Start:    start,
			Elapsed:  exec.clock().Sub(start),
			TimedOut: timedOut,
		}
		if err != nil {
			rec.Outcome = AttemptFailed
			rec.Err = err
		}
		attempts = append(attempts, rec)
		exec.observer.OnAttempt(ctx, label, rec, policy.MaxAttempts)

		if err == nil {
			exec.observer.OnActionDone(ctx, label, attempts, nil)
			return val, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if err := exec.sleep(ctx, policy.Delay); err != nil {
			err = fmt.Errorf("uiflow: %s: %w", label, err)
			exec.observer.OnActionDone(ctx, label, attempts, err)
			return zero, err
		}
	}

	exhausted := &RetryExhausted{
		Label:    label,
		Attempts: attempts,
		LastErr:  lastErr,
	}
	exec.observer.OnActionDone(ctx, label, attempts, exhausted)
	return zero, exhausted
}

// runAttempt invokes op once. With a positive timeout op runs under a derived
// deadline; if the deadline passes first the attempt is failed, but runAttempt
// still waits for op to return (or for the parent context to end) so that two
// attempts never overlap.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op OperationValue[T]) (T, error, bool) {
	if timeout <= 0 {
		val, err := op(ctx)
		return val, err, false
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := op(attemptCtx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return r.val, &AttemptTimeoutError{Timeout: timeout, Err: r.err}, true
		}
		return r.val, r.err, false
	case <-attemptCtx.Done():
	}

	var zero T
	if ctx.Err() != nil {
		// Parent cancelled: the caller is giving up, the operation still
		// holds its cancelled context.
		select {
		case r := <-done:
			if r.err != nil {
				return zero, r.err, false
			}
		default:
		}
		return zero, ctx.Err(), false
	}

	select {
	case r := <-done:
		return zero, &AttemptTimeoutError{Timeout: timeout, Err: r.err}, true
	case <-ctx.Done():
		return zero, &AttemptTimeoutError{Timeout: timeout, Err: ctx.Err()}, true
	}
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
