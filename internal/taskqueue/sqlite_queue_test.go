package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLiteQueue(t *testing.T) *SQLiteQueue {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}
	return q
}

func TestSQLiteQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	tasks := []Task{
		{ID: "1", Type: TaskTypeStartFlow, FlowName: "install-app", Payload: "a"},
		{ID: "2", Type: TaskTypeStartFlow, FlowName: "disable-provisioning", Payload: "b"},
		{ID: "3", Type: TaskTypeResumeRun, RunID: "run-9", Attempts: 2},
	}
	for _, task := range tasks {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", task.ID, err)
		}
		// Distinct enqueue timestamps keep the not_before order stable.
		time.Sleep(time.Millisecond)
	}

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for _, want := range tasks {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.ID != want.ID || got.Type != want.Type || got.FlowName != want.FlowName || got.RunID != want.RunID {
			t.Fatalf("unexpected task: got %+v, want %+v", got, want)
		}
		if got.Payload != want.Payload {
			t.Fatalf("unexpected payload %v, want %v", got.Payload, want.Payload)
		}
		if got.Attempts != want.Attempts {
			t.Fatalf("unexpected attempts %d, want %d", got.Attempts, want.Attempts)
		}
	}

	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func TestSQLiteQueue_AssignsTaskID(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{Type: TaskTypeStartFlow, FlowName: "install-app"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID == "" {
		t.Fatalf("expected generated task ID")
	}
}

func TestSQLiteQueue_DequeueBlocksUntilTaskArrives(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Enqueue(context.Background(), Task{ID: "late", Type: TaskTypeStartFlow, FlowName: "install-app"})
	}()

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "late" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestSQLiteQueue_RespectsNotBefore(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{ID: "later", Type: TaskTypeResumeRun, RunID: "r1", NotBefore: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Enqueue later failed: %v", err)
	}
	if err := q.Enqueue(ctx, Task{ID: "now", Type: TaskTypeStartFlow, FlowName: "install-app"}); err != nil {
		t.Fatalf("Enqueue now failed: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "now" {
		t.Fatalf("expected eligible task first, got %s", got.ID)
	}

	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded for deferred task, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("deferred task must stay queued, Len=%d", q.Len())
	}
}
