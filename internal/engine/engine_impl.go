package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/uiflow/internal/persistence"
	"github.com/petrijr/uiflow/pkg/api"
)

// engineImpl is a simple, synchronous, in-process engine implementation.
// Every step runs through an api.Executor and every attempt is journaled.
type engineImpl struct {
	flows    persistence.FlowStore
	runs     persistence.RunStore
	attempts persistence.AttemptStore

	observer api.Observer
	execOpts []api.ExecutorOption
	clock    func() time.Time
	newID    func() string
}

// Config describes how to construct an engineImpl.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer

	// ExecutorOptions are applied to the executor of every step. The
	// observer is always set by the engine.
	ExecutorOptions []api.ExecutorOption

	Clock func() time.Time
	NewID func() string
}

func NewInMemoryEngine() api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Flows:    mem,
		Runs:     mem,
		Attempts: mem,
	})
}

// NewSQLiteEngine creates an engine that journals runs and attempts in db.
// Flow definitions hold functions and stay in memory.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	p, err := NewSQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(p), nil
}

// NewSQLitePersistence builds the SQLite-backed stores on db.
func NewSQLitePersistence(db *sql.DB) (persistence.Persistence, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	attempts, err := persistence.NewSQLiteAttemptStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	return persistence.Persistence{
		Flows:    persistence.NewInMemoryStore(),
		Runs:     runs,
		Attempts: attempts,
	}, nil
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	attempts := cfg.Persistence.Attempts
	if attempts == nil {
		attempts = persistence.NoopAttemptStore{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &engineImpl{
		flows:    cfg.Persistence.Flows,
		runs:     cfg.Persistence.Runs,
		attempts: attempts,
		observer: obs,
		execOpts: cfg.ExecutorOptions,
		clock:    clock,
		newID:    newID,
	}
}

// NewEngine returns an Engine on the given persistence with no observer.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

func (e *engineImpl) RegisterFlow(def api.FlowDefinition) error {
	if def.Name == "" {
		return errors.New("flow name is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("flow must have at least one step")
	}
	seen := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("flow %s: step %d has no name", def.Name, i)
		}
		if step.Fn == nil {
			return fmt.Errorf("flow %s: step %s has no function", def.Name, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("flow %s: duplicate step name %s", def.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	// Check for duplicates via the store.
	if _, err := e.flows.GetFlow(def.Name); err == nil {
		return fmt.Errorf("flow already registered: %s", def.Name)
	} else if !errors.Is(err, persistence.ErrFlowNotFound) {
		return err
	}

	return e.flows.SaveFlow(def)
}

func (e *engineImpl) Run(ctx context.Context, name string, input any) (*api.FlowRun, error) {
	def, err := e.getFlow(name)
	if err != nil {
		return nil, err
	}

	run := &api.FlowRun{
		ID:          e.newID(),
		Name:        def.Name,
		Status:      api.StatusRunning,
		Input:       input,
		StepResults: make(map[int]any),
		StartedAt:   e.clock(),
	}

	e.observer.OnFlowStart(ctx, run)

	// Persist the run as soon as it starts.
	if err := e.runs.SaveRun(run); err != nil {
		run.Status = api.StatusFailed
		run.Err = err
		e.observer.OnFlowFailed(ctx, run, err)
		return run, err
	}

	return e.executeSteps(ctx, def, run, 0)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.FlowRun, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrRunNotFound, id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.FlowRun, error) {
	return e.runs.ListRuns(persistence.RunFilter{
		FlowName: opts.FlowName,
		Status:   opts.Status,
		Limit:    opts.Limit,
	})
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.FlowRun, error) {
	run, err := e.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	if run.Status != api.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", api.ErrNotResumable, id, run.Status)
	}

	def, err := e.getFlow(run.Name)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	if run.CurrentStep < 0 || run.CurrentStep >= len(def.Steps) {
		return nil, fmt.Errorf("%w: %s failed at step %d of %d", api.ErrNotResumable, id, run.CurrentStep, len(def.Steps))
	}

	run.Status = api.StatusRunning
	run.Err = nil
	run.Output = nil
	run.FinishedAt = time.Time{}
	if run.StepResults == nil {
		run.StepResults = make(map[int]any)
	}

	if err := e.runs.UpdateRun(run); err != nil {
		return run, err
	}

	return e.executeSteps(ctx, def, run, run.CurrentStep)
}

func (e *engineImpl) Attempts(ctx context.Context, runID string) ([]api.AttemptEvent, error) {
	if _, err := e.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.attempts.ListAttempts(ctx, runID)
}

func (e *engineImpl) RecoverStuckRuns(ctx context.Context) (int, error) {
	stuck, err := e.runs.ListRuns(persistence.RunFilter{Status: api.StatusRunning})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, run := range stuck {
		run.Status = api.StatusFailed
		run.Err = api.ErrRecoveredRun
		run.FinishedAt = e.clock()
		if err := e.runs.UpdateRun(run); err != nil {
			return n, fmt.Errorf("recover run %s: %w", run.ID, err)
		}
		n++
	}
	return n, nil
}

func (e *engineImpl) getFlow(name string) (api.FlowDefinition, error) {
	def, err := e.flows.GetFlow(name)
	if err != nil {
		if errors.Is(err, persistence.ErrFlowNotFound) {
			return api.FlowDefinition{}, fmt.Errorf("%w: %s", api.ErrFlowNotFound, name)
		}
		return api.FlowDefinition{}, err
	}
	return def, nil
}

// stepExecutor builds the executor for one step of a run. Its observer fans
// out to the engine observer and the attempt journal.
func (e *engineImpl) stepExecutor(runID string, idx int) *api.Executor {
	journal := &journalObserver{store: e.attempts, runID: runID, step: idx}
	opts := append([]api.ExecutorOption{}, e.execOpts...)
	opts = append(opts,
		api.WithObserver(api.NewCompositeObserver(e.observer, journal)),
		api.WithClock(e.clock),
	)
	return api.NewExecutor(opts...)
}

func (e *engineImpl) executeSteps(
	ctx context.Context,
	def api.FlowDefinition,
	run *api.FlowRun,
	startIndex int,
) (*api.FlowRun, error) {
	current := run.StepInput(startIndex)

	for i := startIndex; i < len(def.Steps); i++ {
		step := def.Steps[i]

		run.CurrentStep = i
		_ = e.runs.UpdateRun(run)

		if err := ctx.Err(); err != nil {
			return e.fail(ctx, run, err)
		}

		exec := e.stepExecutor(run.ID, i)
		stepCtx := api.WithExecutor(ctx, exec)

		startTime := e.clock()
		e.observer.OnStepStart(stepCtx, run, step.Name, i)

		input := current
		next, err := api.DoValue(stepCtx, exec, step.Name, step.Policy(), func(ctx context.Context) (any, error) {
			return step.Fn(ctx, input)
		})

		e.observer.OnStepCompleted(stepCtx, run, step.Name, i, err, e.clock().Sub(startTime))

		if err != nil {
			return e.fail(ctx, run, err)
		}

		run.StepResults[i] = next
		current = next
	}

	run.Status = api.StatusCompleted
	run.Output = current
	run.CurrentStep = len(def.Steps)
	run.FinishedAt = e.clock()
	_ = e.runs.UpdateRun(run)

	e.observer.OnFlowCompleted(ctx, run)

	return run, nil
}

func (e *engineImpl) fail(ctx context.Context, run *api.FlowRun, err error) (*api.FlowRun, error) {
	run.Status = api.StatusFailed
	run.Err = err
	run.FinishedAt = e.clock()
	_ = e.runs.UpdateRun(run)
	e.observer.OnFlowFailed(ctx, run, err)
	return run, err
}

// journalObserver appends every attempt of a step, including attempts of
// actions nested inside the step, to the attempt store.
type journalObserver struct {
	api.NoopObserver

	store persistence.AttemptStore
	runID string
	step  int
}

func (j *journalObserver) OnAttempt(ctx context.Context, label string, rec api.AttemptRecord, maxAttempts int) {
	// Journal errors never fail the step.
	_ = j.store.AppendAttempt(context.WithoutCancel(ctx), api.NewAttemptEvent(j.runID, j.step, label, rec))
}
