package api

import (
	"context"
	"fmt"
	"time"
)

// Sampler reads the current value of a condition once.
type Sampler[T any] func(ctx context.Context) (T, error)

const (
	DefaultRequiredStableReadings = 2
	DefaultPollInterval           = 500 * time.Millisecond
	DefaultMaxPolls               = 5
)

// StabilizeOptions tunes a stabilization. Zero or negative fields take the
// defaults: 2 consecutive equal readings, 500ms apart, at most 5 polls after
// the first sample.
type StabilizeOptions struct {
	RequiredStableReadings int
	PollInterval           time.Duration
	MaxPolls               int
}

func (o StabilizeOptions) withDefaults() StabilizeOptions {
	if o.RequiredStableReadings < 1 {
		o.RequiredStableReadings = DefaultRequiredStableReadings
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPolls < 1 {
		o.MaxPolls = DefaultMaxPolls
	}
	return o
}

// Stabilization is the detailed result of StabilizeDetailed.
type Stabilization[T any] struct {
	Value T

	// Stable is false when MaxPolls ran out before enough consecutive equal
	// readings were seen. Value is then the last observed value.
	Stable bool

	// Samples counts successful samples, including the first.
	Samples int
}

// Stabilize samples a condition until it returns the same value
// RequiredStableReadings times in a row and returns that value. If the
// condition never settles it returns the last observed value without an
// error; use StabilizeDetailed to tell the two apart.
func Stabilize[T comparable](ctx context.Context, exec *Executor, label string, sample Sampler[T], opts StabilizeOptions) (T, error) {
	res, err := StabilizeDetailed(ctx, exec, label, sample, opts)
	return res.Value, err
}

// StabilizeDetailed is Stabilize with the stability verdict exposed.
//
// The first sample seeds the comparison. Each subsequent poll waits
// PollInterval, samples again, and either extends the run of equal readings
// or restarts it from the new value. A failing sample on a subsequent poll
// counts as a poll but leaves the run unchanged. An error is returned only
// when no sample succeeded at all or when ctx ends.
func StabilizeDetailed[T comparable](ctx context.Context, exec *Executor, label string, sample Sampler[T], opts StabilizeOptions) (Stabilization[T], error) {
	var res Stabilization[T]

	if ctx == nil {
		ctx = context.Background()
	}
	if exec == nil {
		exec = NewExecutor()
	}
	if label == "" {
		return res, ErrEmptyLabel
	}
	opts = opts.withDefaults()

	var (
		previous    T
		seeded      bool
		stableCount int
		lastErr     error
	)

	if v, err := sample(ctx); err != nil {
		lastErr = err
	} else {
		previous = v
		seeded = true
		res.Samples++
	}

	if seeded && stableCount >= opts.RequiredStableReadings-1 {
		return finishStabilize(ctx, exec, label, previous, true, res.Samples), nil
	}

	for poll := 0; poll < opts.MaxPolls; poll++ {
		if err := exec.sleep(ctx, opts.PollInterval); err != nil {
			return res, fmt.Errorf("uiflow: %s: %w", label, err)
		}

		v, err := sample(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("uiflow: %s: %w", label, ctxErr)
			}
			lastErr = err
			continue
		}
		res.Samples++

		switch {
		case !seeded:
			previous = v
			seeded = true
		case v == previous:
			stableCount++
		default:
			previous = v
			stableCount = 0
		}

		if stableCount >= opts.RequiredStableReadings-1 {
			return finishStabilize(ctx, exec, label, previous, true, res.Samples), nil
		}
	}

	if !seeded {
		return res, fmt.Errorf("uiflow: %s: no successful sample: %w", label, lastErr)
	}
	return finishStabilize(ctx, exec, label, previous, false, res.Samples), nil
}

func finishStabilize[T any](ctx context.Context, exec *Executor, label string, value T, stable bool, samples int) Stabilization[T] {
	exec.observer.OnStabilized(ctx, label, stable, samples, value)
	return Stabilization[T]{Value: value, Stable: stable, Samples: samples}
}
