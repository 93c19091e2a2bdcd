// Package uiflow drives end-to-end UI flows against a web console and keeps
// them stable on a page that renders asynchronously.
//
// The package is a thin, stable front for pkg/api and the internal engine.
// Most programs only need this package; page flows and the browser driver
// live in internal packages used by the uiflow command.
//
// # Synchronization core
//
// Four primitives absorb the timing noise of a real browser:
//
//	Executor        bounded retries with a fixed delay and an optional
//	                per-attempt timeout (Do, DoValue)
//	Stabilize       samples a condition until it repeats for N readings
//	Race            the first of several exclusive signals wins, or "timeout"
//	ExtractErrors   collects validation messages with a fallback tier
//
// Operations given to the executor must be idempotent. A flow that walks a
// list of entities keeps a ProcessedSet so a retried operation skips the
// entities it already handled.
//
// # Engine
//
// An Engine runs registered flows step by step. Each step runs through an
// Executor with the step's RetryPolicy, and every attempt is journaled, also
// the attempts of actions nested inside the step (see Do). Engines come in
// two flavors:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (runs and attempts survive the process)
//
// A failed run can be resumed; it restarts at the step that failed with the
// previous step's stored output.
//
// # FlowBuilder
//
//	uiflow.New("install-app").
//	    Step("install", installApp).
//	    StepWithRetry("verify", verifyInstalled, uiflow.Retry(3).WithDelay(2*time.Second).Policy())
//
// # LocalRunner and bundles
//
// LocalRunner bundles an in-memory engine, queue, and worker for development.
// NewSQLiteBundle does the same on a SQLite database so queued runs survive a
// restart. One browser page serves one flow at a time, so run one worker per
// page.
package uiflow
