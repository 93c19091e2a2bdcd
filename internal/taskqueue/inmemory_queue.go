package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a FIFO Queue backed by a buffered channel.
// It is safe for concurrent use.
type InMemoryQueue struct {
	ch chan Task

	// held keeps tasks whose delayed delivery was interrupted. They go out
	// before anything still in ch.
	mu   sync.Mutex
	held []Task
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch: make(chan Task, capacity),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns tasks in enqueue order. A task whose NotBefore lies in the
// future holds the consumer until it becomes eligible. If ctx ends first the
// task keeps its place at the head of the queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	t, ok := q.takeHeld()
	if !ok {
		select {
		case t = <-q.ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := waitUntil(ctx, t.NotBefore); err != nil {
		q.putHeld(t)
		return nil, err
	}
	return &t, nil
}

func (q *InMemoryQueue) takeHeld() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.held) == 0 {
		return Task{}, false
	}
	t := q.held[0]
	q.held = q.held[1:]
	return t, true
}

func (q *InMemoryQueue) putHeld(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held = append([]Task{t}, q.held...)
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.held)
}
