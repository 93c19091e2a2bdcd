package uiflow

import (
	"database/sql"

	"github.com/petrijr/uiflow/internal/taskqueue"
	workerpkg "github.com/petrijr/uiflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is primarily useful for internal inspection and tests.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Runs, attempts and queued tasks are persisted
// in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:uiflow.db?_pragma=journal_mode(WAL)")
//	bundle, err := uiflow.NewSQLiteBundle(db, worker.Config{MaxAttempts: 2})
//	// register flows on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	return NewSQLiteBundleWithObserver(db, cfg, nil)
}

// NewSQLiteBundleWithObserver is like NewSQLiteBundle but reports engine
// events to obs and applies opts to every step executor.
func NewSQLiteBundleWithObserver(db *sql.DB, cfg workerpkg.Config, obs Observer, opts ...ExecutorOption) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngineWithObserver(db, obs, opts...)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.NewWithConfig(eng, q, cfg),
		queue:  q,
	}, nil
}

// Pending returns the number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
