package api

import (
	"context"
	"fmt"
	"time"
)

// TagTimeout is the outcome of a race that no signal won in time.
const TagTimeout = "timeout"

// DefaultCheckInterval is the polling interval used for Check signals and by
// WhenTrue when given a non-positive interval.
const DefaultCheckInterval = 100 * time.Millisecond

// CheckFunc reports whether a signal's condition holds right now. An error
// counts as false for this poll.
type CheckFunc func(ctx context.Context) (bool, error)

// WaitFunc blocks until a signal fires (nil) or can no longer fire (error).
// It must return promptly once ctx is done.
type WaitFunc func(ctx context.Context) error

// Signal is one mutually exclusive outcome of a race. Exactly one of Check
// and Wait must be set.
//
// Check signals are polled by the race itself, one after another in
// registration order, so they never run concurrently with each other. Wait
// signals run in their own goroutines; use them only for waits that are safe
// to run concurrently.
type Signal struct {
	Tag   string
	Check CheckFunc
	Wait  WaitFunc
}

// RaceResult is the detailed outcome of a race.
type RaceResult struct {
	// Tag is the winning signal's tag or TagTimeout.
	Tag     string
	Elapsed time.Duration

	// Errors holds, by tag, the error of each Wait signal that dropped out
	// and the last error of each Check signal that did not win.
	Errors map[string]error
}

// TimedOut reports whether no signal won.
func (r RaceResult) TimedOut() bool {
	return r.Tag == TagTimeout
}

// WhenTrue adapts a polled predicate into a WaitFunc. check is evaluated
// immediately and then every interval until it reports true. Errors from
// check count as false.
func WhenTrue(check CheckFunc, interval time.Duration) WaitFunc {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if ok, err := check(ctx); err == nil && ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// Race waits for the first of signals to fire and returns its tag, or
// TagTimeout if none fires within timeout. See RaceDetailed.
func (e *Executor) Race(ctx context.Context, label string, timeout time.Duration, signals ...Signal) (string, error) {
	res, err := e.RaceDetailed(ctx, label, timeout, signals...)
	if err != nil {
		return "", err
	}
	return res.Tag, nil
}

// RaceDetailed resolves a race between signals.
//
// Every poll tick evaluates the signals in registration order and the first
// one that holds wins, so signals that fire in the same tick resolve to the
// one registered first. Check signals are evaluated at start and then every
// poll interval. A Wait signal that has returned counts as holding from the
// next evaluation on; its return also triggers an evaluation.
//
// A Wait signal that returns an error drops out. When every signal is a Wait
// signal and all have dropped out, the race resolves to TagTimeout without
// waiting for the deadline. Waits and checks still running when the race
// resolves see their context cancelled. Parent context cancellation is
// returned as an error.
func (e *Executor) RaceDetailed(ctx context.Context, label string, timeout time.Duration, signals ...Signal) (RaceResult, error) {
	if e == nil {
		e = NewExecutor()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if label == "" {
		return RaceResult{}, ErrEmptyLabel
	}
	if err := validateSignals(timeout, signals); err != nil {
		return RaceResult{}, fmt.Errorf("%w: %s: %v", ErrInvalidRace, label, err)
	}

	start := e.clock()
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		idx int
		err error
	}
	// Buffered so that losers never block after the race has resolved.
	results := make(chan result, len(signals))
	waiting, checks := 0, 0
	for i, s := range signals {
		if s.Check != nil {
			checks++
			continue
		}
		waiting++
		go func(i int, wait WaitFunc) {
			results <- result{idx: i, err: wait(raceCtx)}
		}(i, s.Wait)
	}

	var tick <-chan time.Time
	if checks > 0 {
		ticker := time.NewTicker(e.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	errs := make(map[string]error)
	fired := make([]bool, len(signals))

	evaluate := func() int {
		for i, s := range signals {
			if s.Check == nil {
				if fired[i] {
					return i
				}
				continue
			}
			ok, err := s.Check(raceCtx)
			if err == nil && ok {
				return i
			}
			if raceCtx.Err() != nil {
				return -1
			}
			if err != nil {
				errs[s.Tag] = err
			}
		}
		return -1
	}

	deliver := func(r result) {
		waiting--
		switch {
		case r.err == nil:
			fired[r.idx] = true
		case raceCtx.Err() == nil:
			errs[signals[r.idx].Tag] = r.err
		}
	}

	winner := evaluate()
loop:
	for winner < 0 {
		if checks == 0 && waiting == 0 {
			break
		}
		select {
		case <-raceCtx.Done():
			if ctx.Err() != nil {
				return RaceResult{}, fmt.Errorf("uiflow: %s: %w", label, ctx.Err())
			}
			break loop

		case <-tick:

		case r := <-results:
			deliver(r)
			// Anything else already delivered fired in the same tick.
		drain:
			for {
				select {
				case r := <-results:
					deliver(r)
				default:
					break drain
				}
			}
		}
		if ctx.Err() != nil {
			return RaceResult{}, fmt.Errorf("uiflow: %s: %w", label, ctx.Err())
		}
		winner = evaluate()
	}
	cancel()

	res := RaceResult{
		Tag:     TagTimeout,
		Elapsed: e.clock().Sub(start),
	}
	if winner >= 0 {
		res.Tag = signals[winner].Tag
		delete(errs, res.Tag)
	}
	if len(errs) > 0 {
		res.Errors = errs
	}
	e.observer.OnRaceResolved(ctx, label, res)
	return res, nil
}

func validateSignals(timeout time.Duration, signals []Signal) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	if len(signals) < 2 {
		return fmt.Errorf("need at least 2 signals, got %d", len(signals))
	}
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		switch {
		case s.Tag == "":
			return fmt.Errorf("signal tag must not be empty")
		case s.Tag == TagTimeout:
			return fmt.Errorf("signal tag %q is reserved", TagTimeout)
		case s.Check == nil && s.Wait == nil:
			return fmt.Errorf("signal %q has no check or wait function", s.Tag)
		case s.Check != nil && s.Wait != nil:
			return fmt.Errorf("signal %q sets both check and wait", s.Tag)
		}
		if _, dup := seen[s.Tag]; dup {
			return fmt.Errorf("duplicate signal tag %q", s.Tag)
		}
		seen[s.Tag] = struct{}{}
	}
	return nil
}
