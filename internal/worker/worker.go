// Package worker drains the check queue and runs the pipeline for each item.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultCheckTimeout bounds one pipeline run.
const DefaultCheckTimeout = 3 * time.Minute

// Checker runs one check.
type Checker interface {
	Check(ctx context.Context, req watch.CheckRequest) watch.CheckOutcome
}

// Rescheduler lets the worker feed outcomes back into the scheduler.
type Rescheduler interface {
	Reschedule(jobID string, interval time.Duration) bool
	Cancel(jobID string)
}

// Config controls Worker behavior.
type Config struct {
	CheckTimeout time.Duration
}

// Worker consumes queue items and runs checks.
type Worker struct {
	id      int
	queue   watch.Queue
	checker Checker
	sched   Rescheduler
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. sched may be nil.
func New(id int, queue watch.Queue, checker Checker, sched Rescheduler, cfg Config, logger *zap.Logger) *Worker {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		checker: checker,
		sched:   sched,
		cfg:     cfg,
		logger:  logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued check",
			zap.String("monitor_id", item.Request.MonitorID),
			zap.Duration("queued_for", time.Since(item.Submitted)))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item watch.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	checkCtx, cancel := context.WithTimeout(ctx, w.cfg.CheckTimeout)
	defer cancel()

	outcome := w.checker.Check(checkCtx, item.Request)
	w.logger.Info("check finished",
		zap.String("monitor_id", item.Request.MonitorID),
		zap.String("status", string(outcome.Status)),
		zap.Int("interval_seconds", outcome.IntervalSeconds))
	w.reconcile(item.Request.MonitorID, outcome)
}

// reconcile keeps the recurring job in line with the monitor: a vanished
// monitor loses its job and a changed interval moves the ticker.
func (w *Worker) reconcile(monitorID string, outcome watch.CheckOutcome) {
	if w.sched == nil || monitorID == "" {
		return
	}
	switch outcome.Status {
	case watch.StatusMonitorNotFound:
		w.sched.Cancel(monitorID)
	case watch.StatusChecked:
		w.sched.Reschedule(monitorID, time.Duration(outcome.IntervalSeconds)*time.Second)
	}
}
