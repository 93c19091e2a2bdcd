package persistence

import (
	"context"

	"github.com/petrijr/uiflow/pkg/api"
)

var (
	// ErrFlowNotFound is returned when a flow definition is not found.
	ErrFlowNotFound = api.ErrFlowNotFound

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = api.ErrRunNotFound
)

// FlowStore handles storage of flow definitions. Definitions hold functions,
// so they only ever live in memory.
type FlowStore interface {
	SaveFlow(def api.FlowDefinition) error
	GetFlow(name string) (api.FlowDefinition, error)
	ListFlows() ([]string, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero values mean "no filter" for that field.
type RunFilter struct {
	FlowName string
	Status   api.Status

	// Limit, if positive, keeps only the newest runs.
	Limit int
}

// RunStore handles storage of flow runs.
type RunStore interface {
	SaveRun(run *api.FlowRun) error
	UpdateRun(run *api.FlowRun) error
	GetRun(id string) (*api.FlowRun, error)
	// ListRuns returns matching runs, newest first.
	ListRuns(filter RunFilter) ([]*api.FlowRun, error)
}

// AttemptStore is an append-only journal of action attempts.
type AttemptStore interface {
	AppendAttempt(ctx context.Context, ev api.AttemptEvent) error
	// ListAttempts returns a run's attempts in the order they were appended.
	ListAttempts(ctx context.Context, runID string) ([]api.AttemptEvent, error)
}

// NoopAttemptStore discards all attempts.
type NoopAttemptStore struct{}

func (NoopAttemptStore) AppendAttempt(ctx context.Context, ev api.AttemptEvent) error { return nil }
func (NoopAttemptStore) ListAttempts(ctx context.Context, runID string) ([]api.AttemptEvent, error) {
	return nil, nil
}
