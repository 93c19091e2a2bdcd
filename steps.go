package uiflow

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// SleepStep returns a step that sleeps for the given duration
// and passes the input through.
func SleepStep(d time.Duration) StepFunc {
	return api.SleepStep(d)
}

// TypedStep wraps a strongly-typed function into a StepFunc.
// Example:
//
//	uiflow.TypedStep(func(ctx context.Context, app AppRequest) (InstallResult, error) { ... })
//
// A nil input is passed as the zero value of I.
func TypedStep[I, O any](fn func(context.Context, I) (O, error)) StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		var in I
		if input != nil {
			v, ok := input.(I)
			if !ok {
				return nil, fmt.Errorf("uiflow: step expected input %T, got %T", in, input)
			}
			in = v
		}
		return fn(ctx, in)
	}
}

// ActionStep returns a step that runs op as a retried action inside the step
// and passes the input through. The step's own policy stays single-attempt;
// the action's attempts are journaled under label.
func ActionStep(label string, policy RetryPolicy, op func(ctx context.Context, input any) error) StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		err := Do(ctx, label, policy, func(ctx context.Context) error {
			return op(ctx, input)
		})
		return input, err
	}
}
