// Package memory provides an in-process queue.Queue backend for local
// development and the default single-instance orchestrator deployment.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blogwatch/ingestor/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan queue.Task
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue.Queue with the given channel capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan queue.Task, capacity),
	}
}

// Enqueue pushes task onto the channel, or returns if ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, task queue.Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (queue.Task, error) {
	select {
	case <-ctx.Done():
		return queue.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return queue.Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel. Idempotent.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}
