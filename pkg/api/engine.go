package api

import (
	"context"
	"errors"
)

var (
	// ErrFlowNotFound is returned when no flow is registered under a name.
	ErrFlowNotFound = errors.New("uiflow: flow not found")

	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = errors.New("uiflow: run not found")

	// ErrNotResumable is returned by Resume for runs that are not FAILED.
	ErrNotResumable = errors.New("uiflow: run is not resumable")
)

// Engine runs registered flows synchronously and keeps a journal of runs and
// attempts.
type Engine interface {
	// RegisterFlow registers a definition by name.
	RegisterFlow(def FlowDefinition) error

	// Run starts and runs the flow to completion (synchronously).
	Run(ctx context.Context, name string, input any) (*FlowRun, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*FlowRun, error)

	// ListRuns returns runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*FlowRun, error)

	// Resume restarts a FAILED run at the step that failed, feeding it the
	// previous step's stored output. The run ID is reused.
	Resume(ctx context.Context, id string) (*FlowRun, error)

	// Attempts returns the journaled attempts of a run in execution order.
	Attempts(ctx context.Context, runID string) ([]AttemptEvent, error)

	// RecoverStuckRuns marks runs left in StatusRunning (for example after a
	// crash) as StatusFailed so they can be resumed. It returns the number of
	// runs updated. Call it on startup, before running anything.
	RecoverStuckRuns(ctx context.Context) (int, error)
}

// ErrRecoveredRun is stored on runs marked failed by RecoverStuckRuns.
var ErrRecoveredRun = errors.New("uiflow: run interrupted before completion")
