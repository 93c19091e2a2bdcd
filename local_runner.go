package uiflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/uiflow/internal/taskqueue"
	"github.com/petrijr/uiflow/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := uiflow.NewLocalRunner()
//	flow := uiflow.New("install-app").Step(...)
//	flow.MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := uiflow.Run(ctx, runner.Engine, flow.Name(), input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 1)
//	_ = runner.StartFlowAsync(ctx, flow.Name(), input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory flow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithConfig(NewInMemoryEngine(), worker.Config{})
}

// NewLocalRunnerWithConfig is like NewLocalRunner but uses eng and cfg.
func NewLocalRunnerWithConfig(eng Engine, cfg worker.Config) *LocalRunner {
	q := taskqueue.NewInMemoryQueue(1024)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.NewWithConfig(eng, q, cfg),
		logger: logger,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop. Flows that
// share one browser page need concurrency 1.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("uiflow: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.group = new(errgroup.Group)
	for i := 0; i < concurrency; i++ {
		r.group.Go(func() error {
			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if !processed {
					// Cancellation is a clean shutdown signal.
					if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					r.logger.ErrorContext(ctx, "dequeue_failed", slog.Any("error", err))
					continue
				}
				if err != nil {
					// A failed run is already journaled; keep the loop alive.
					r.logger.WarnContext(ctx, "task_failed", slog.Any("error", err))
				}
			}
		})
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, group := r.cancel, r.group
	r.running = false
	r.cancel = nil
	r.group = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = group.Wait()
}

// StartFlowAsync enqueues a task to run the given flow asynchronously.
// The flow must already be registered on LocalRunner.Engine.
func (r *LocalRunner) StartFlowAsync(ctx context.Context, flowName string, input any) error {
	return r.Worker.EnqueueRun(ctx, flowName, input)
}

// ResumeAsync enqueues a task that resumes a failed run.
func (r *LocalRunner) ResumeAsync(ctx context.Context, runID string) error {
	return r.Worker.EnqueueResume(ctx, runID)
}
