// Package metrics provides Prometheus instrumentation for flows and the
// synchronization primitives underneath them.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/petrijr/uiflow/pkg/api"
)

// Observer is an api.Observer that records Prometheus metrics on its own
// registry.
type Observer struct {
	registry *prometheus.Registry

	FlowsTotal      *prometheus.CounterVec
	FlowDuration    *prometheus.HistogramVec
	StepsTotal      *prometheus.CounterVec
	AttemptsTotal   *prometheus.CounterVec
	AttemptTimeouts prometheus.Counter
	ActionsTotal    *prometheus.CounterVec
	ActionDuration  prometheus.Histogram
	Stabilizations  *prometheus.CounterVec
	RacesTotal      *prometheus.CounterVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver registers the uiflow metrics on a fresh registry.
func NewObserver() *Observer {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Observer{
		registry: reg,

		FlowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "flows_total",
			Help:      "Total number of finished flow runs.",
		}, []string{"flow", "status"}),

		FlowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uiflow",
			Name:      "flow_duration_seconds",
			Help:      "Duration of flow runs in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"flow"}),

		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "steps_total",
			Help:      "Total number of finished flow steps.",
		}, []string{"flow", "step", "outcome"}),

		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "attempts_total",
			Help:      "Total number of action attempts.",
		}, []string{"outcome"}),

		AttemptTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "attempt_timeouts_total",
			Help:      "Total number of attempts that exceeded their attempt timeout.",
		}),

		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "actions_total",
			Help:      "Total number of finished actions.",
		}, []string{"outcome"}),

		ActionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uiflow",
			Name:      "action_duration_seconds",
			Help:      "Time spent in action attempts, delays excluded.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		Stabilizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "stabilizations_total",
			Help:      "Total number of stabilizations by whether the value settled.",
		}, []string{"stable"}),

		RacesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiflow",
			Name:      "races_total",
			Help:      "Total number of races by winning tag.",
		}, []string{"tag"}),
	}
}

// Registry returns the registry the metrics live on.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// WriteTextfile writes the current metrics in the text exposition format,
// for the node exporter textfile collector.
func (o *Observer) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, o.registry)
}

func (o *Observer) OnFlowStart(ctx context.Context, run *api.FlowRun) {}

func (o *Observer) OnFlowCompleted(ctx context.Context, run *api.FlowRun) {
	o.finishFlow(run)
}

func (o *Observer) OnFlowFailed(ctx context.Context, run *api.FlowRun, err error) {
	o.finishFlow(run)
}

func (o *Observer) finishFlow(run *api.FlowRun) {
	o.FlowsTotal.WithLabelValues(run.Name, string(run.Status)).Inc()
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		o.FlowDuration.WithLabelValues(run.Name).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

func (o *Observer) OnStepStart(ctx context.Context, run *api.FlowRun, stepName string, stepIndex int) {}

func (o *Observer) OnStepCompleted(ctx context.Context, run *api.FlowRun, stepName string, stepIndex int, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	o.StepsTotal.WithLabelValues(run.Name, stepName, outcome).Inc()
}

func (o *Observer) OnAttempt(ctx context.Context, label string, rec api.AttemptRecord, maxAttempts int) {
	o.AttemptsTotal.WithLabelValues(string(rec.Outcome)).Inc()
	if rec.TimedOut {
		o.AttemptTimeouts.Inc()
	}
	o.ActionDuration.Observe(rec.Elapsed.Seconds())
}

func (o *Observer) OnActionDone(ctx context.Context, label string, attempts []api.AttemptRecord, err error) {
	var exhausted *api.RetryExhausted
	outcome := "succeeded"
	switch {
	case err == nil:
	case errors.As(err, &exhausted):
		outcome = "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "failed"
	}
	o.ActionsTotal.WithLabelValues(outcome).Inc()
}

func (o *Observer) OnStabilized(ctx context.Context, label string, stable bool, samples int, value any) {
	o.Stabilizations.WithLabelValues(strconv.FormatBool(stable)).Inc()
}

func (o *Observer) OnRaceResolved(ctx context.Context, label string, res api.RaceResult) {
	o.RacesTotal.WithLabelValues(res.Tag).Inc()
}
