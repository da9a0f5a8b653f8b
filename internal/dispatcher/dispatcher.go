// Package dispatcher manages worker fan-out over the check queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
	"github.com/JakeFAU/pagewatch/internal/worker"
)

// tryEnqueuer is implemented by queues that refuse work instead of waiting.
type tryEnqueuer interface {
	TryEnqueue(item watch.QueueItem) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   watch.Queue
	workers []*worker.Worker
	clock   watch.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue watch.Queue, workers []*worker.Worker, clock watch.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		clock:   clock,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item watch.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit stamps req and queues it for an interactive caller. A full queue
// fails at once with watch.ErrQueueFull when the queue supports it.
func (d *Dispatcher) Submit(ctx context.Context, req watch.CheckRequest) error {
	item := d.item(req)
	if q, ok := d.queue.(tryEnqueuer); ok {
		if err := q.TryEnqueue(item); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
		return nil
	}
	return d.Enqueue(ctx, item)
}

// TaskFor returns the recurring task that queues a check of monitorID.
// Scheduled checks wait for room in the queue.
func (d *Dispatcher) TaskFor(monitorID string) watch.Task {
	return func(ctx context.Context) {
		if err := d.Enqueue(ctx, d.item(watch.CheckRequest{MonitorID: monitorID})); err != nil {
			d.logger.Warn("scheduled check not queued", zap.String("monitor_id", monitorID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) item(req watch.CheckRequest) watch.QueueItem {
	return watch.QueueItem{Request: req, Submitted: d.now()}
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}
