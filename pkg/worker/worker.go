package worker

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/uiflow/internal/taskqueue"
	"github.com/petrijr/uiflow/pkg/api"
)

func init() {
	gob.Register(StartFlowPayload{})
}

// StartFlowPayload is the payload for a "start-flow" task.
type StartFlowPayload struct {
	Input any
}

// Config controls how a Worker handles failed runs.
type Config struct {
	// MaxAttempts is the number of times a flow run is attempted by the
	// worker. A failed run is requeued as a resume task until the budget is
	// spent. Values <= 1 disable requeueing.
	MaxAttempts int

	// Backoff delays a requeued resume task.
	Backoff time.Duration

	// Logger receives requeue decisions. Defaults to slog.Default().
	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
	logger *slog.Logger
}

// New creates a new Worker that never requeues failed runs.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a new Worker using cfg.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// EnqueueRun enqueues a task to run a flow asynchronously.
// It does NOT run the flow itself; that is done by ProcessOne.
func (w *Worker) EnqueueRun(ctx context.Context, flowName string, input any) error {
	return w.EnqueueRunAt(ctx, flowName, input, time.Time{})
}

// EnqueueRunAt enqueues a flow run that starts no earlier than at.
func (w *Worker) EnqueueRunAt(ctx context.Context, flowName string, input any, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeStartFlow,
		FlowName:   flowName,
		Payload:    StartFlowPayload{Input: input},
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	})
}

// EnqueueResume enqueues a task that resumes a failed run.
func (w *Worker) EnqueueResume(ctx context.Context, runID string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeResumeRun,
		RunID:      runID,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue error)
//   - processed == true: a task was processed; err is the run's error, if any.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	var (
		run    *api.FlowRun
		runErr error
	)
	switch task.Type {
	case taskqueue.TaskTypeStartFlow:
		payload, ok := task.Payload.(StartFlowPayload)
		if !ok {
			return true, fmt.Errorf("invalid payload type %T for start-flow task", task.Payload)
		}
		run, runErr = w.engine.Run(ctx, task.FlowName, payload.Input)

	case taskqueue.TaskTypeResumeRun:
		run, runErr = w.engine.Resume(ctx, task.RunID)

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}

	if runErr != nil {
		w.maybeRequeue(ctx, task, run, runErr)
	}
	return true, runErr
}

// maybeRequeue schedules a resume of a failed run while the attempt budget
// lasts. Runs that never started (unknown flow) are not requeued.
func (w *Worker) maybeRequeue(ctx context.Context, task *taskqueue.Task, run *api.FlowRun, runErr error) {
	if run == nil || run.Status != api.StatusFailed || ctx.Err() != nil {
		return
	}
	attempt := task.Attempts + 1
	if attempt >= w.cfg.MaxAttempts {
		w.logger.WarnContext(ctx, "run_abandoned",
			slog.String("run_id", run.ID),
			slog.String("flow", run.Name),
			slog.Int("attempts", attempt),
			slog.Any("error", runErr),
		)
		return
	}

	next := taskqueue.Task{
		Type:       taskqueue.TaskTypeResumeRun,
		RunID:      run.ID,
		EnqueuedAt: time.Now(),
		Attempts:   attempt,
	}
	if w.cfg.Backoff > 0 {
		next.NotBefore = time.Now().Add(w.cfg.Backoff)
	}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		w.logger.ErrorContext(ctx, "requeue_failed",
			slog.String("run_id", run.ID),
			slog.Any("error", err),
		)
		return
	}
	w.logger.InfoContext(ctx, "run_requeued",
		slog.String("run_id", run.ID),
		slog.String("flow", run.Name),
		slog.Int("attempt", attempt+1),
		slog.Int("max_attempts", w.cfg.MaxAttempts),
		slog.Duration("backoff", w.cfg.Backoff),
	)
}
