package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestWorkerRunsChecksAndReschedules(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []watch.QueueItem{
		{Request: watch.CheckRequest{MonitorID: "m1"}, Submitted: time.Now()},
	}}
	checker := &mockChecker{}
	checker.On("Check", mock.Anything, watch.CheckRequest{MonitorID: "m1"}).
		Return(watch.CheckOutcome{IntervalSeconds: 600, Status: watch.StatusChecked}).Once()
	sched := newFakeScheduler()

	w := New(1, queue, checker, sched, Config{}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool { return sched.rescheduled("m1") == 10*time.Minute }, time.Second, 5*time.Millisecond)
	checker.AssertExpectations(t)
}

func TestWorkerCancelsJobForMissingMonitor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []watch.QueueItem{{Request: watch.CheckRequest{MonitorID: "gone"}}}}
	checker := &mockChecker{}
	checker.On("Check", mock.Anything, mock.Anything).
		Return(watch.CheckOutcome{IntervalSeconds: watch.DefaultIntervalSeconds, Status: watch.StatusMonitorNotFound})
	sched := newFakeScheduler()

	go New(1, queue, checker, sched, Config{}, zap.NewNop()).Run(ctx)

	require.Eventually(t, func() bool { return sched.wasCanceled("gone") }, time.Second, 5*time.Millisecond)
}

func TestWorkerLeavesScheduleAloneOnError(t *testing.T) {
	t.Parallel()

	checker := &mockChecker{}
	checker.On("Check", mock.Anything, mock.Anything).
		Return(watch.CheckOutcome{IntervalSeconds: watch.DefaultIntervalSeconds, Status: watch.StatusError})
	sched := newFakeScheduler()

	w := New(1, &fakeQueue{}, checker, sched, Config{}, zap.NewNop())
	w.process(context.Background(), watch.QueueItem{Request: watch.CheckRequest{MonitorID: "m1"}})

	require.Zero(t, sched.rescheduled("m1"))
	require.False(t, sched.wasCanceled("m1"))
}

func TestWorkerAppliesCheckDeadline(t *testing.T) {
	t.Parallel()

	checker := &mockChecker{}
	var deadline time.Time
	checker.On("Check", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, _ = ctx.Deadline()
		}).
		Return(watch.CheckOutcome{Status: watch.StatusChecked})

	w := New(1, &fakeQueue{}, checker, nil, Config{CheckTimeout: 50 * time.Millisecond}, zap.NewNop())
	start := time.Now()
	w.process(context.Background(), watch.QueueItem{})

	require.False(t, deadline.IsZero())
	require.WithinDuration(t, start.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(1, &fakeQueue{}, &mockChecker{}, nil, Config{}, zap.NewNop()).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerDefaults(t *testing.T) {
	t.Parallel()

	w := New(3, nil, nil, nil, Config{}, nil)
	require.Equal(t, DefaultCheckTimeout, w.cfg.CheckTimeout)
	require.Equal(t, 3, w.id)
}

// --- fakes ---

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context, req watch.CheckRequest) watch.CheckOutcome {
	args := m.Called(ctx, req)
	return args.Get(0).(watch.CheckOutcome)
}

type fakeQueue struct {
	mu    sync.Mutex
	items []watch.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item watch.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (watch.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return watch.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type fakeScheduler struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	canceled  map[string]bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{intervals: map[string]time.Duration{}, canceled: map[string]bool{}}
}

func (s *fakeScheduler) Reschedule(jobID string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[jobID] = interval
	return true
}

func (s *fakeScheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled[jobID] = true
}

func (s *fakeScheduler) rescheduled(jobID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals[jobID]
}

func (s *fakeScheduler) wasCanceled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled[jobID]
}

