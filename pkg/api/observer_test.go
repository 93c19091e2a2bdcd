package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts    int
	completes int
	fails     int

	stepStarts    int
	stepCompletes int

	attempts    int
	actionsDone int
	stabilized  int
	races       int

	lastFlowStart    *FlowRun
	lastFlowComplete *FlowRun
	lastFlowFail     struct {
		Run *FlowRun
		Err error
	}
	lastStepComplete struct {
		StepName  string
		StepIndex int
		Err       error
		Duration  time.Duration
	}
	lastRace RaceResult
}

func (o *testObserver) OnFlowStart(ctx context.Context, run *FlowRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastFlowStart = run
}

func (o *testObserver) OnFlowCompleted(ctx context.Context, run *FlowRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastFlowComplete = run
}

func (o *testObserver) OnFlowFailed(ctx context.Context, run *FlowRun, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails++
	o.lastFlowFail.Run = run
	o.lastFlowFail.Err = err
}

func (o *testObserver) OnStepStart(ctx context.Context, run *FlowRun, stepName string, stepIndex int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts++
}

func (o *testObserver) OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, stepIndex int, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes++
	o.lastStepComplete.StepName = stepName
	o.lastStepComplete.StepIndex = stepIndex
	o.lastStepComplete.Err = err
	o.lastStepComplete.Duration = d
}

func (o *testObserver) OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *testObserver) OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actionsDone++
}

func (o *testObserver) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stabilized++
}

func (o *testObserver) OnRaceResolved(ctx context.Context, label string, res RaceResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.races++
	o.lastRace = res
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Copy to avoid reuse issues.
	cpy := slog.Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		cpy.AddAttrs(a)
		return true
	})
	h.records = append(h.records, cpy)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Not needed for tests; just return itself.
	return h
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	// Not needed for tests.
	return h
}

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func newTestRun() *FlowRun {
	return &FlowRun{
		ID:   "run-123",
		Name: "flow-test",
	}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()
	var o Observer = NoopObserver{}

	// These calls should simply not panic.
	o.OnFlowStart(ctx, run)
	o.OnFlowCompleted(ctx, run)
	o.OnFlowFailed(ctx, run, errors.New("boom"))
	o.OnStepStart(ctx, run, "step-1", 0)
	o.OnStepCompleted(ctx, run, "step-1", 0, nil, time.Second)
	o.OnAttempt(ctx, "label", AttemptRecord{Attempt: 1}, 3)
	o.OnActionDone(ctx, "label", nil, nil)
	o.OnStabilized(ctx, "label", true, 2, "on")
	o.OnRaceResolved(ctx, "label", RaceResult{Tag: TagTimeout})
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil) // include a nil to ensure it is filtered

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestNewCompositeObserver_MultipleReturnsComposite(t *testing.T) {
	o := NewCompositeObserver(&testObserver{}, &testObserver{})

	if _, ok := o.(*CompositeObserver); !ok {
		t.Fatalf("expected *CompositeObserver, got %T", o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("step failed")
	co.OnFlowStart(ctx, run)
	co.OnFlowCompleted(ctx, run)
	co.OnFlowFailed(ctx, run, err)
	co.OnStepStart(ctx, run, "step-1", 1)
	co.OnStepCompleted(ctx, run, "step-1", 1, err, 2*time.Second)
	co.OnAttempt(ctx, "click", AttemptRecord{Attempt: 1, Outcome: AttemptSucceeded}, 3)
	co.OnActionDone(ctx, "click", nil, nil)
	co.OnStabilized(ctx, "toggle", true, 2, true)
	co.OnRaceResolved(ctx, "save", RaceResult{Tag: "updated"})

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.completes != 1 || o.fails != 1 || o.stepStarts != 1 || o.stepCompletes != 1 {
			t.Fatalf("observer %d did not receive all flow calls: %+v", i+1, o)
		}
		if o.attempts != 1 || o.actionsDone != 1 || o.stabilized != 1 || o.races != 1 {
			t.Fatalf("observer %d did not receive all primitive calls: %+v", i+1, o)
		}
		if o.lastFlowStart != run || o.lastFlowComplete != run || o.lastFlowFail.Run != run {
			t.Fatalf("observer %d run mismatch", i+1)
		}
		if o.lastFlowFail.Err != err {
			t.Fatalf("observer %d fail error mismatch", i+1)
		}
		if o.lastStepComplete.StepName != "step-1" || o.lastStepComplete.StepIndex != 1 ||
			o.lastStepComplete.Err != err || o.lastStepComplete.Duration != 2*time.Second {
			t.Fatalf("observer %d stepComplete mismatch: %+v", i+1, o.lastStepComplete)
		}
		if o.lastRace.Tag != "updated" {
			t.Fatalf("observer %d race mismatch: %+v", i+1, o.lastRace)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnFlowStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnFlowStart(ctx, run)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "flow_start" {
		t.Fatalf("expected message flow_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["flow"] != run.Name {
		t.Fatalf("expected flow=%q, got %v", run.Name, attrs["flow"])
	}
	if attrs["run_id"] != run.ID {
		t.Fatalf("expected run_id=%q, got %v", run.ID, attrs["run_id"])
	}
}

func TestLoggingObserver_OnStepCompleted_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnStepCompleted(ctx, run, "step-ok", 0, nil, time.Second)
	o.OnStepCompleted(ctx, run, "step-fail", 1, errors.New("boom"), 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}

	successRec := h.records[0]
	failRec := h.records[1]

	if successRec.Level != slog.LevelDebug {
		t.Fatalf("expected success record LevelDebug, got %v", successRec.Level)
	}
	if failRec.Level != slog.LevelError {
		t.Fatalf("expected failure record LevelError, got %v", failRec.Level)
	}

	attrs := attrsToMap(failRec)
	if attrs["step"] != "step-fail" {
		t.Fatalf("expected step=step-fail, got %v", attrs["step"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

func TestLoggingObserver_FinalAttemptFailureIsNotWarned(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnAttempt(context.Background(), "click", AttemptRecord{Attempt: 3, Outcome: AttemptFailed, Err: errors.New("x")}, 3)

	if len(h.records) != 1 || h.records[0].Level != slog.LevelDebug {
		t.Fatalf("expected final attempt failure at debug, got %+v", h.records)
	}
}

func TestLoggingObserver_ActionCancelled(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnActionDone(context.Background(), "click", nil, context.Canceled)

	if len(h.records) != 1 || h.records[0].Message != "action_cancelled" || h.records[0].Level != slog.LevelWarn {
		t.Fatalf("unexpected records: %+v", h.records)
	}
}

func TestLoggingObserver_RaceSignalErrors(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnRaceResolved(context.Background(), "save", RaceResult{
		Tag:    "updated",
		Errors: map[string]error{"errors": errors.New("bad locator")},
	})

	if len(h.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.records))
	}
	if h.records[0].Message != "race_signal_failed" || attrsToMap(h.records[0])["tag"] != "errors" {
		t.Fatalf("unexpected first record: %+v", h.records[0])
	}
	if h.records[1].Message != "race_resolved" || h.records[1].Level != slog.LevelInfo {
		t.Fatalf("unexpected second record: %+v", h.records[1])
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_FlowCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()
	run := newTestRun()

	// 3 started, 1 completed, 1 failed -> pending = 1
	m.OnFlowStart(ctx, run)
	m.OnFlowStart(ctx, run)
	m.OnFlowStart(ctx, run)

	m.OnFlowCompleted(ctx, run)
	m.OnFlowFailed(ctx, run, errors.New("fail"))

	snap := m.Snapshot()

	if snap.FlowsStarted != 3 {
		t.Fatalf("FlowsStarted=%d, want 3", snap.FlowsStarted)
	}
	if snap.FlowsCompleted != 1 {
		t.Fatalf("FlowsCompleted=%d, want 1", snap.FlowsCompleted)
	}
	if snap.FlowsFailed != 1 {
		t.Fatalf("FlowsFailed=%d, want 1", snap.FlowsFailed)
	}
	if snap.PendingFlows != 1 {
		t.Fatalf("PendingFlows=%d, want 1", snap.PendingFlows)
	}
	if snap.StepsCompleted != 0 || snap.AvgStepDuration != 0 {
		t.Fatalf("expected no step metrics, got %+v", snap)
	}
}

func TestBasicMetrics_OnStepCompleted_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	run := newTestRun()

	m.OnStepCompleted(ctx, run, "step-1", 0, nil, 1*time.Second)
	m.OnStepCompleted(ctx, run, "step-2", 1, nil, 3*time.Second)
	m.OnStepCompleted(ctx, run, "step-3", 2, errors.New("fail"), 10*time.Second)

	snap := m.Snapshot()

	if snap.StepsCompleted != 2 {
		t.Fatalf("StepsCompleted=%d, want 2", snap.StepsCompleted)
	}
	if want := 2 * time.Second; snap.AvgStepDuration != want {
		t.Fatalf("AvgStepDuration=%v, want %v", snap.AvgStepDuration, want)
	}
}

func TestBasicMetrics_PrimitiveCounters(t *testing.T) {
	var m BasicMetrics
	exec := NewExecutor(WithObserver(&m), WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))
	ctx := context.Background()

	_ = exec.Do(ctx, "flaky", RetryPolicy{MaxAttempts: 2}, func(ctx context.Context) error {
		return errors.New("nope")
	})
	_, _ = Stabilize(ctx, exec, "flapping", func() Sampler[int] {
		n := 0
		return func(ctx context.Context) (int, error) { n++; return n, nil }
	}(), StabilizeOptions{MaxPolls: 2})
	_, _ = exec.Race(ctx, "idle", 10*time.Millisecond,
		Signal{Tag: "a", Wait: never},
		Signal{Tag: "b", Wait: never},
	)

	snap := m.Snapshot()
	if snap.Attempts != 2 || snap.AttemptsFailed != 2 || snap.ActionsExhausted != 1 {
		t.Fatalf("action counters: %+v", snap)
	}
	if snap.UnstableConditions != 1 {
		t.Fatalf("UnstableConditions=%d, want 1", snap.UnstableConditions)
	}
	if snap.RacesTimedOut != 1 {
		t.Fatalf("RacesTimedOut=%d, want 1", snap.RacesTimedOut)
	}
}
