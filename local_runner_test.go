package uiflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/uiflow/pkg/worker"
)

// TestLocalRunner_SyncAndAsync verifies that LocalRunner can run flows
// both synchronously (direct Run) and asynchronously via StartFlowAsync
// + worker loop.
func TestLocalRunner_SyncAndAsync(t *testing.T) {
	runner := NewLocalRunner()

	// Simple flow: (n + 1) * 2
	flow := New("localrunner-sync-async").
		Step("inc", TypedStep(func(ctx context.Context, n int) (int, error) { return n + 1, nil })).
		Step("double", TypedStep(func(ctx context.Context, n int) (int, error) { return n * 2, nil }))
	flow.MustRegister(runner.Engine)

	ctx := context.Background()

	syncRun, err := Run(ctx, runner.Engine, flow.Name(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, syncRun.Status)
	require.Equal(t, 4, syncRun.Output)

	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.NoError(t, runner.StartFlowAsync(ctx, flow.Name(), 3))

	require.Eventually(t, func() bool {
		runs, err := ListRuns(ctx, runner.Engine, RunListOptions{FlowName: flow.Name(), Status: StatusCompleted})
		if err != nil {
			return false
		}
		for _, r := range runs {
			if r.Output == 8 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalRunner_ResumeAsync(t *testing.T) {
	eng := NewInMemoryEngine()
	runner := NewLocalRunnerWithConfig(eng, worker.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := context.Background()

	healthy := false
	flow := New("resume-async").
		Step("verify", func(ctx context.Context, input any) (any, error) {
			if !healthy {
				return nil, errors.New("catalog offline")
			}
			return "ok", nil
		})
	flow.MustRegister(eng)

	failed, err := Run(ctx, eng, flow.Name(), nil)
	require.Error(t, err)
	require.Equal(t, StatusFailed, failed.Status)

	healthy = true
	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()
	require.NoError(t, runner.ResumeAsync(ctx, failed.ID))

	require.Eventually(t, func() bool {
		r, err := GetRun(ctx, eng, failed.ID)
		return err == nil && r.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

// TestLocalRunner_StartWorkersTwice ensures that StartWorkers cannot be
// called twice without Stop in between.
func TestLocalRunner_StartWorkersTwice(t *testing.T) {
	runner := NewLocalRunner()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer runner.Stop()

	require.NoError(t, runner.StartWorkers(ctx, 1))
	require.Error(t, runner.StartWorkers(ctx, 1))
}

// TestLocalRunner_StopWithoutStart ensures Stop is safe when workers were
// never started.
func TestLocalRunner_StopWithoutStart(t *testing.T) {
	runner := NewLocalRunner()
	runner.Stop()
}
