package api

import "context"

type attemptInfoKey struct{}

// AttemptInfo is attached to the context passed to each attempt.
type AttemptInfo struct {
	Label       string
	Attempt     int
	MaxAttempts int
}

// Last reports whether this is the final allowed attempt.
func (a AttemptInfo) Last() bool {
	return a.Attempt >= a.MaxAttempts
}

// WithAttemptInfo returns a context derived from ctx that carries info.
func WithAttemptInfo(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptInfoKey{}, info)
}

// AttemptFromContext returns the AttemptInfo from ctx, if present.
func AttemptFromContext(ctx context.Context) (AttemptInfo, bool) {
	info, ok := ctx.Value(attemptInfoKey{}).(AttemptInfo)
	return info, ok
}

type executorKey struct{}

// WithExecutor returns a context that carries exec. The engine attaches the
// step's executor so that actions nested inside a step are journaled with it.
func WithExecutor(ctx context.Context, exec *Executor) context.Context {
	return context.WithValue(ctx, executorKey{}, exec)
}

// ExecutorFromContext returns the executor attached by WithExecutor, or
// fallback when there is none.
func ExecutorFromContext(ctx context.Context, fallback *Executor) *Executor {
	if exec, ok := ctx.Value(executorKey{}).(*Executor); ok && exec != nil {
		return exec
	}
	return fallback
}
