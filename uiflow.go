package uiflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/uiflow/internal/engine"
	"github.com/petrijr/uiflow/internal/persistence"
	"github.com/petrijr/uiflow/internal/taskqueue"
	"github.com/petrijr/uiflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	FlowDefinition       = api.FlowDefinition
	StepDefinition       = api.StepDefinition
	FlowRun              = api.FlowRun
	RunListOptions       = api.RunListOptions
	Status               = api.Status
	StepFunc             = api.StepFunc
	RetryPolicy          = api.RetryPolicy
	AttemptRecord        = api.AttemptRecord
	AttemptEvent         = api.AttemptEvent
	RetryExhausted       = api.RetryExhausted
	Executor             = api.Executor
	ExecutorOption       = api.ExecutorOption
	Operation            = api.Operation
	StabilizeOptions     = api.StabilizeOptions
	Signal               = api.Signal
	WaitFunc             = api.WaitFunc
	CheckFunc            = api.CheckFunc
	RaceResult           = api.RaceResult
	TextMatcher          = api.TextMatcher
	ProcessedSet         = api.ProcessedSet
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Queue                = taskqueue.Queue
)

// Re-export constructors and helpers of the synchronization core.

var (
	NewExecutor          = api.NewExecutor
	WithObserver         = api.WithObserver
	WithClock            = api.WithClock
	WithSleep            = api.WithSleep
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewProcessedSet      = api.NewProcessedSet
	DefaultRetryPolicy   = api.DefaultRetryPolicy
	WhenTrue             = api.WhenTrue
	ExtractErrors        = api.ExtractErrors
	HasPrefixFold        = api.HasPrefixFold
	FormatErrors         = api.FormatErrors
	IsRetryExhausted     = api.IsRetryExhausted
)

// Re-export sentinel errors.

var (
	ErrFlowNotFound = api.ErrFlowNotFound
	ErrRunNotFound  = api.ErrRunNotFound
	ErrNotResumable = api.ErrNotResumable
	ErrInvalidRace  = api.ErrInvalidRace
	ErrEmptyLabel   = api.ErrEmptyLabel
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusFailed    = api.StatusFailed
	StatusCompleted = api.StatusCompleted

	AttemptSucceeded = api.AttemptSucceeded
	AttemptFailed    = api.AttemptFailed

	TagTimeout = api.TagTimeout
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer, opts ...ExecutorOption) Engine {
	mem := persistence.NewInMemoryStore()
	return engine.NewEngineWithConfig(engine.Config{
		Persistence:     persistence.Persistence{Flows: mem, Runs: mem, Attempts: mem},
		Observer:        obs,
		ExecutorOptions: opts,
	})
}

// NewSQLiteEngine returns an Engine that journals runs and attempts in a
// SQLite database. Flow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer, opts ...ExecutorOption) (Engine, error) {
	p, err := engine.NewSQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Persistence:     p,
		Observer:        obs,
		ExecutorOptions: opts,
	}), nil
}

// NewInMemoryQueue returns a channel-backed task queue.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable task queue stored in db.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// Convenience helpers that just forward to the underlying Engine.

// Run runs a registered flow synchronously.
func Run(ctx context.Context, eng Engine, name string, input any) (*FlowRun, error) {
	return eng.Run(ctx, name, input)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*FlowRun, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*FlowRun, error) {
	return eng.ListRuns(ctx, opts)
}

// Resume resumes a previously failed run at the step that failed.
func Resume(ctx context.Context, eng Engine, id string) (*FlowRun, error) {
	return eng.Resume(ctx, id)
}

// Attempts returns the journaled attempts of a run.
func Attempts(ctx context.Context, eng Engine, runID string) ([]AttemptEvent, error) {
	return eng.Attempts(ctx, runID)
}

// RecoverStuckRuns delegates to eng.RecoverStuckRuns.
//
// It is typically called on process startup before running anything:
//
//	count, err := uiflow.RecoverStuckRuns(ctx, engine)
func RecoverStuckRuns(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckRuns(ctx)
}

// Do runs op through the executor carried by ctx. Inside a step that is the
// step's executor, so nested attempts land in the run journal. Outside of a
// step a default executor is used.
func Do(ctx context.Context, label string, policy RetryPolicy, op Operation) error {
	return api.ExecutorFromContext(ctx, nil).Do(ctx, label, policy, op)
}

// DoValue is the value-returning form of Do.
func DoValue[T any](ctx context.Context, label string, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	return api.DoValue[T](ctx, api.ExecutorFromContext(ctx, nil), label, policy, op)
}

// Race resolves signals through the executor carried by ctx.
func Race(ctx context.Context, label string, timeout time.Duration, signals ...Signal) (string, error) {
	return api.ExecutorFromContext(ctx, nil).Race(ctx, label, timeout, signals...)
}

// Stabilize polls sample through the executor carried by ctx until it
// reports the same value for opts.RequiredStableReadings readings.
func Stabilize[T comparable](ctx context.Context, label string, sample func(ctx context.Context) (T, error), opts StabilizeOptions) (T, error) {
	return api.Stabilize[T](ctx, api.ExecutorFromContext(ctx, nil), label, sample, opts)
}
