// Package scheduler runs recurring tasks in process, one goroutine and ticker
// per job id.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

type job struct {
	interval time.Duration
	task     watch.Task
	trigger  chan struct{}
	cancel   context.CancelFunc
}

// Scheduler implements watch.Scheduler. Jobs registered before Start are
// held and launched when Start is called.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	baseCtx context.Context
	jobs    map[string]*job
	wg      sync.WaitGroup
}

// New builds an idle scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger.Named("scheduler"),
		jobs:   make(map[string]*job),
	}
}

// Start binds the scheduler to ctx and launches any pending jobs. Every job
// stops when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
	for id, j := range s.jobs {
		if j.cancel == nil {
			s.spawnLocked(id, j)
		}
	}
}

// RegisterRecurring schedules task every interval, replacing any job with
// the same id. The first run happens one interval after registration.
func (s *Scheduler) RegisterRecurring(jobID string, interval time.Duration, task watch.Task) {
	if interval <= 0 {
		interval = watch.DefaultIntervalSeconds * time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(jobID)
	j := &job{interval: interval, task: task, trigger: make(chan struct{}, 1)}
	s.jobs[jobID] = j
	if s.baseCtx != nil {
		s.spawnLocked(jobID, j)
	}
	metrics.SetScheduledJobs(len(s.jobs))
	s.logger.Debug("job registered", zap.String("job_id", jobID), zap.Duration("interval", interval))
}

// Reschedule changes a registered job's interval and keeps its task. It
// reports false when jobID is not registered.
func (s *Scheduler) Reschedule(jobID string, interval time.Duration) bool {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if j.interval == interval || interval <= 0 {
		return true
	}
	s.RegisterRecurring(jobID, interval, j.task)
	return true
}

// Cancel stops and forgets a job.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(jobID)
	delete(s.jobs, jobID)
	metrics.SetScheduledJobs(len(s.jobs))
}

// Trigger runs a job's task as soon as possible without changing its ticker.
func (s *Scheduler) Trigger(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	select {
	case j.trigger <- struct{}{}:
	default:
	}
	return true
}

// Interval returns the interval a job runs at.
func (s *Scheduler) Interval(jobID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return 0, false
	}
	return j.interval, true
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Wait blocks until every job goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Lister enumerates stored monitors.
type Lister interface {
	List(ctx context.Context) ([]watch.Monitor, error)
}

// Restore registers one job per stored monitor, keyed by monitor id.
func (s *Scheduler) Restore(ctx context.Context, lister Lister, taskFor func(watch.Monitor) watch.Task) (int, error) {
	monitors, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list monitors: %w", err)
	}
	for _, m := range monitors {
		s.RegisterRecurring(m.ID, m.Interval(), taskFor(m))
	}
	return len(monitors), nil
}

func (s *Scheduler) stopLocked(jobID string) {
	if j, ok := s.jobs[jobID]; ok && j.cancel != nil {
		j.cancel()
	}
}

func (s *Scheduler) spawnLocked(jobID string, j *job) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	j.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, jobID, j)
}

func (s *Scheduler) run(ctx context.Context, jobID string, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, jobID, j.task)
		case <-j.trigger:
			s.execute(ctx, jobID, j.task)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, jobID string, task watch.Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job_id", jobID), zap.Any("panic", r))
		}
	}()
	task(ctx)
}
