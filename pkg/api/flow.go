package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a flow run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// StepFunc is a single step in a flow. The output of one step is the input
// of the next.
type StepFunc func(ctx context.Context, input any) (any, error)

// SleepStep returns a StepFunc that waits for the given duration
// before passing the input through unchanged.
//
// It is context-aware: if the context is cancelled during the sleep,
// it returns ctx.Err and the run fails at this step.
func SleepStep(d time.Duration) StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		if err := SleepContext(ctx, d); err != nil {
			return nil, err
		}
		return input, nil
	}
}

// StepDefinition describes a named step. A nil Retry runs the step once.
type StepDefinition struct {
	Name  string
	Fn    StepFunc
	Retry *RetryPolicy
}

// Policy returns the effective retry policy for the step.
func (s StepDefinition) Policy() RetryPolicy {
	if s.Retry == nil {
		return SingleAttempt()
	}
	return s.Retry.Normalize()
}

// FlowDefinition describes a flow as an ordered sequence of steps.
type FlowDefinition struct {
	Name  string
	Steps []StepDefinition
}

// FlowRun holds the state of one execution of a FlowDefinition.
type FlowRun struct {
	ID     string
	Name   string
	Status Status
	Input  any
	Output any
	Err    error

	// CurrentStep tracks progress through the flow steps.
	//   - Before any steps run: 0
	//   - While running step i: i
	//   - After successful completion: len(steps)
	//   - On failure: index of the step that failed (or was cancelled).
	CurrentStep int

	// StepResults holds the output of every completed step by index. Resume
	// uses it to feed the failed step the same input it had before.
	StepResults map[int]any

	StartedAt  time.Time
	FinishedAt time.Time
}

// StepInput returns the input that step idx receives: the run input for the
// first step, otherwise the previous step's stored output.
func (r *FlowRun) StepInput(idx int) any {
	if idx <= 0 {
		return r.Input
	}
	return r.StepResults[idx-1]
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// FlowName, if non-empty, limits results to runs of the given flow.
	FlowName string

	// Status, if non-empty, limits results to runs with the given status.
	Status Status

	// Limit, if positive, caps the number of runs returned (newest first).
	Limit int
}
