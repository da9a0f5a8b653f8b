// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/queue/memory"
	"github.com/JakeFAU/pagewatch/internal/watch"
	"github.com/JakeFAU/pagewatch/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(1, queue, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil, nil, zap.NewNop())

	err := dispatch.Enqueue(context.Background(), watch.QueueItem{})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherTaskForQueuesCheck(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	at := time.Unix(1700000000, 0).UTC()
	dispatch := New(queue, nil, fixedClock{at}, zap.NewNop())

	dispatch.TaskFor("m1")(context.Background())

	items := queue.snapshot()
	require.Len(t, items, 1)
	require.Equal(t, watch.CheckRequest{MonitorID: "m1"}, items[0].Request)
	require.Equal(t, at, items[0].Submitted)
}

func TestDispatcherTaskForSwallowsQueueErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("full")}, nil, nil, zap.NewNop())
	require.NotPanics(t, func() { dispatch.TaskFor("m1")(context.Background()) })
}

func TestDispatcherSubmitFailsFastOnFullQueue(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	dispatch := New(queue, nil, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dispatch.Submit(ctx, watch.CheckRequest{MonitorID: "m1"}))

	start := time.Now()
	err := dispatch.Submit(ctx, watch.CheckRequest{MonitorID: "m2"})
	require.ErrorIs(t, err, watch.ErrQueueFull)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, 1, queue.Len())
}

func TestDispatcherSubmitBlockingQueueFallback(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	dispatch := New(queue, nil, nil, zap.NewNop())

	require.NoError(t, dispatch.Submit(context.Background(), watch.CheckRequest{MonitorID: "m1"}))
	require.Len(t, queue.snapshot(), 1)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingQueue struct {
	mu    sync.Mutex
	items []watch.QueueItem
}

func (q *recordingQueue) Enqueue(_ context.Context, item watch.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (watch.QueueItem, error) {
	<-ctx.Done()
	return watch.QueueItem{}, ctx.Err()
}

func (q *recordingQueue) snapshot() []watch.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]watch.QueueItem(nil), q.items...)
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ watch.QueueItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (watch.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return watch.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, watch.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (watch.QueueItem, error) {
	return watch.QueueItem{}, nil
}
