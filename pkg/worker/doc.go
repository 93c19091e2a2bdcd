// Package worker runs uiflow flows from a task queue.
//
// A Worker consumes two kinds of tasks: "start-flow" tasks created by
// EnqueueRun and "resume-run" tasks created by EnqueueResume or by the worker
// itself when a run fails and Config.MaxAttempts allows another go. Resumed
// runs restart at the step that failed, so earlier page interactions (an app
// that was already installed, for example) are not repeated.
//
// A browser page is owned by one flow at a time. Run a single worker loop per
// browser; LocalRunner in the uiflow package does that for local use and the
// SQLite bundle does it for a durable queue shared across process restarts.
package worker
