// Package api contains the core building blocks of uiflow: the retry
// executor, the condition stabilizer, the outcome race and error-detail
// extraction, plus the flow, run and observer types shared with the engine.
//
// Most users interact with the higher-level uiflow package, which re-exports
// selected types and helpers from this package.
//
// # Actions
//
// An action is an Operation run by an Executor under a RetryPolicy. Attempts
// are sequential, separated by a fixed delay, and optionally bounded by a
// per-attempt timeout. When every attempt fails the caller receives a
// *RetryExhausted with the full attempt history.
//
// Operations may run more than once, so they must be idempotent. A flow that
// walks a list of entities inside one action records finished entities in a
// ProcessedSet and skips them on the next attempt.
//
// # Conditions
//
// UI state often flickers while a page hydrates. Stabilize samples a value
// until it reads the same several times in a row. It is lenient: if the
// value never settles the last reading is returned; StabilizeDetailed
// exposes the verdict for callers that need to fail instead.
//
// # Outcomes
//
// After a submit the page shows one of several mutually exclusive outcomes.
// Executor.Race waits for whichever Signal fires first and returns its tag,
// or TagTimeout when none does in time. WhenTrue turns a polled predicate
// into a signal.
//
// # Observability
//
// Executors and engines report to an Observer. LoggingObserver writes
// structured slog records, BasicMetrics keeps in-memory counters, and
// NewCompositeObserver fans out to several observers.
package api
