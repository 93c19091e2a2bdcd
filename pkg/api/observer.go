package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the executor and the flow engine for
// logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the flow.
type Observer interface {
	// OnFlowStart is called once when a run is first started, before the
	// first step is executed.
	OnFlowStart(ctx context.Context, run *FlowRun)

	// OnFlowCompleted is called when a run reaches StatusCompleted.
	OnFlowCompleted(ctx context.Context, run *FlowRun)

	// OnFlowFailed is called when a run transitions to StatusFailed.
	OnFlowFailed(ctx context.Context, run *FlowRun, err error)

	// OnStepStart is called before a step's first attempt.
	// stepIndex is the 0-based index into FlowDefinition.Steps.
	OnStepStart(ctx context.Context, run *FlowRun, stepName string, stepIndex int)

	// OnStepCompleted is called after a step's last attempt, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, stepIndex int, err error, duration time.Duration)

	// OnAttempt is called after every attempt of an executor action.
	OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int)

	// OnActionDone is called once per action with the full history. err is
	// nil on success, a *RetryExhausted on exhaustion, or a context error.
	OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error)

	// OnStabilized is called when a stabilization finishes with a value.
	OnStabilized(ctx context.Context, label string, stable bool, samples int, value any)

	// OnRaceResolved is called once per race.
	OnRaceResolved(ctx context.Context, label string, res RaceResult)
}

// NoopObserver is an Observer that does nothing.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, run *FlowRun)             {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, run *FlowRun)         {}
func (NoopObserver) OnFlowFailed(ctx context.Context, run *FlowRun, err error) {}
func (NoopObserver) OnStepStart(ctx context.Context, run *FlowRun, stepName string, idx int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, idx int, err error, d time.Duration) {
}
func (NoopObserver) OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int) {
}
func (NoopObserver) OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error) {
}
func (NoopObserver) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
}
func (NoopObserver) OnRaceResolved(ctx context.Context, label string, res RaceResult) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, run *FlowRun) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, run)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, run *FlowRun) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, run *FlowRun, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *FlowRun, stepName string, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, stepName, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, stepName, idx, err, d)
	}
}

func (c *CompositeObserver) OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int) {
	for _, o := range c.observers {
		o.OnAttempt(ctx, label, rec, maxAttempts)
	}
}

func (c *CompositeObserver) OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error) {
	for _, o := range c.observers {
		o.OnActionDone(ctx, label, attempts, err)
	}
}

func (c *CompositeObserver) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
	for _, o := range c.observers {
		o.OnStabilized(ctx, label, stable, samples, value)
	}
}

func (c *CompositeObserver) OnRaceResolved(ctx context.Context, label string, res RaceResult) {
	for _, o := range c.observers {
		o.OnRaceResolved(ctx, label, res)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow, step, action,
// stabilization and race events using the provided slog.Logger. If logger is
// nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, run *FlowRun) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow", run.Name),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, run *FlowRun) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("flow", run.Name),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, run *FlowRun, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("flow", run.Name),
		slog.String("run_id", run.ID),
		slog.Int("step_index", run.CurrentStep),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *FlowRun, stepName string, idx int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("flow", run.Name),
		slog.String("run_id", run.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("flow", run.Name),
		slog.String("run_id", run.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int) {
	if !rec.Failed() {
		o.Logger.DebugContext(ctx, "attempt_succeeded",
			slog.String("action", label),
			slog.Int("attempt", rec.Attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("elapsed", rec.Elapsed),
		)
		return
	}

	// The final failure is reported by OnActionDone.
	level := slog.LevelWarn
	if rec.Attempt >= maxAttempts {
		level = slog.LevelDebug
	}
	o.Logger.Log(ctx, level, "attempt_failed",
		slog.String("action", label),
		slog.Int("attempt", rec.Attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("elapsed", rec.Elapsed),
		slog.Bool("timed_out", rec.TimedOut),
		slog.Any("error", rec.Err),
	)
}

func (o *LoggingObserver) OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error) {
	switch _, exhausted := IsRetryExhausted(err); {
	case err == nil:
		o.Logger.InfoContext(ctx, "action_succeeded",
			slog.String("action", label),
			slog.Int("attempts", len(attempts)),
		)
	case exhausted:
		o.Logger.ErrorContext(ctx, "action_exhausted",
			slog.String("action", label),
			slog.Int("attempts", len(attempts)),
			slog.Any("error", err),
		)
	default:
		o.Logger.WarnContext(ctx, "action_cancelled",
			slog.String("action", label),
			slog.Int("attempts", len(attempts)),
			slog.Any("error", err),
		)
	}
}

func (o *LoggingObserver) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
	if stable {
		o.Logger.DebugContext(ctx, "stabilized",
			slog.String("condition", label),
			slog.Int("samples", samples),
			slog.Any("value", value),
		)
		return
	}
	o.Logger.WarnContext(ctx, "stabilize_incomplete",
		slog.String("condition", label),
		slog.Int("samples", samples),
		slog.Any("value", value),
	)
}

func (o *LoggingObserver) OnRaceResolved(ctx context.Context, label string, res RaceResult) {
	for tag, err := range res.Errors {
		o.Logger.WarnContext(ctx, "race_signal_failed",
			slog.String("race", label),
			slog.String("tag", tag),
			slog.Any("error", err),
		)
	}

	level := slog.LevelInfo
	if res.TimedOut() {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "race_resolved",
		slog.String("race", label),
		slog.String("outcome", res.Tag),
		slog.Duration("elapsed", res.Elapsed),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted      atomic.Int64
	flowsCompleted    atomic.Int64
	flowsFailed       atomic.Int64
	stepsCompleted    atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds

	attempts         atomic.Int64
	attemptsFailed   atomic.Int64
	actionsExhausted atomic.Int64
	unstable         atomic.Int64
	racesTimedOut    atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	FlowsFailed    int64
	PendingFlows   int64

	StepsCompleted  int64
	AvgStepDuration time.Duration

	Attempts           int64
	AttemptsFailed     int64
	ActionsExhausted   int64
	UnstableConditions int64
	RacesTimedOut      int64
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, run *FlowRun) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, run *FlowRun) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnFlowFailed(ctx context.Context, run *FlowRun, err error) {
	m.flowsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *FlowRun, stepName string, idx int, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnAttempt(ctx context.Context, label string, rec AttemptRecord, maxAttempts int) {
	m.attempts.Add(1)
	if rec.Failed() {
		m.attemptsFailed.Add(1)
	}
}

func (m *BasicMetrics) OnActionDone(ctx context.Context, label string, attempts []AttemptRecord, err error) {
	if _, ok := IsRetryExhausted(err); ok {
		m.actionsExhausted.Add(1)
	}
}

func (m *BasicMetrics) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
	if !stable {
		m.unstable.Add(1)
	}
}

func (m *BasicMetrics) OnRaceResolved(ctx context.Context, label string, res RaceResult) {
	if res.TimedOut() {
		m.racesTimedOut.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:       started,
		FlowsCompleted:     completed,
		FlowsFailed:        failed,
		PendingFlows:       started - completed - failed,
		StepsCompleted:     steps,
		AvgStepDuration:    avg,
		Attempts:           m.attempts.Load(),
		AttemptsFailed:     m.attemptsFailed.Load(),
		ActionsExhausted:   m.actionsExhausted.Load(),
		UnstableConditions: m.unstable.Load(),
		RacesTimedOut:      m.racesTimedOut.Load(),
	}
}
