// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan watch.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan watch.QueueItem, capacity),
	}
}

// Enqueue pushes a check into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item watch.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes a check without blocking and returns watch.ErrQueueFull
// when the buffer has no room.
func (q *Queue) TryEnqueue(item watch.QueueItem) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return watch.ErrQueueFull
	}
}

// Dequeue pops the next check, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (watch.QueueItem, error) {
	select {
	case <-ctx.Done():
		return watch.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return watch.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Len reports the number of buffered checks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
