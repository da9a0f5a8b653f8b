package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func counterTask(n *atomic.Int32) watch.Task {
	return func(context.Context) { n.Add(1) }
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(zap.NewNop())
	s.Start(ctx)

	var runs atomic.Int32
	s.RegisterRecurring("m1", 10*time.Millisecond, counterTask(&runs))

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestSchedulerPendingJobsStartOnStart(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	var runs atomic.Int32
	s.RegisterRecurring("m1", 10*time.Millisecond, counterTask(&runs))
	time.Sleep(30 * time.Millisecond)
	require.Zero(t, runs.Load())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestSchedulerRegisterReplacesExisting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(zap.NewNop())
	s.Start(ctx)

	var first, second atomic.Int32
	s.RegisterRecurring("m1", 10*time.Millisecond, counterTask(&first))
	require.Eventually(t, func() bool { return first.Load() >= 1 }, time.Second, 5*time.Millisecond)

	s.RegisterRecurring("m1", 10*time.Millisecond, counterTask(&second))
	require.Equal(t, 1, s.Len())
	settled := first.Load()
	require.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.LessOrEqual(t, first.Load(), settled+1)
}

func TestSchedulerCancelAndTrigger(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(zap.NewNop())
	s.Start(ctx)

	var runs atomic.Int32
	s.RegisterRecurring("m1", time.Hour, counterTask(&runs))
	require.True(t, s.Trigger("m1"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Cancel("m1")
	require.Zero(t, s.Len())
	require.False(t, s.Trigger("m1"))
	_, ok := s.Interval("m1")
	require.False(t, ok)
}

func TestSchedulerReschedule(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	require.False(t, s.Reschedule("missing", time.Minute))

	s.RegisterRecurring("m1", time.Hour, func(context.Context) {})
	require.True(t, s.Reschedule("m1", 2*time.Hour))
	interval, ok := s.Interval("m1")
	require.True(t, ok)
	require.Equal(t, 2*time.Hour, interval)

	require.True(t, s.Reschedule("m1", 0))
	interval, _ = s.Interval("m1")
	require.Equal(t, 2*time.Hour, interval)
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	s.RegisterRecurring("m1", 0, func(context.Context) {})
	interval, ok := s.Interval("m1")
	require.True(t, ok)
	require.Equal(t, watch.DefaultIntervalSeconds*time.Second, interval)
}

func TestSchedulerSurvivesPanickingTask(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(zap.NewNop())
	s.Start(ctx)

	var runs atomic.Int32
	s.RegisterRecurring("m1", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
		panic("boom")
	})
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

type fakeLister struct {
	monitors []watch.Monitor
	err      error
}

func (f fakeLister) List(context.Context) ([]watch.Monitor, error) {
	return f.monitors, f.err
}

func TestSchedulerRestore(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	n, err := s.Restore(context.Background(), fakeLister{monitors: []watch.Monitor{
		{ID: "a", IntervalSeconds: 60},
		{ID: "b"},
	}}, func(watch.Monitor) watch.Task { return func(context.Context) {} })
	require.NoError(t, err)
	require.Equal(t, 2, n)

	interval, ok := s.Interval("a")
	require.True(t, ok)
	require.Equal(t, time.Minute, interval)
	interval, _ = s.Interval("b")
	require.Equal(t, watch.DefaultIntervalSeconds*time.Second, interval)

	_, err = s.Restore(context.Background(), fakeLister{err: errors.New("db down")}, nil)
	require.ErrorContains(t, err, "db down")
}
