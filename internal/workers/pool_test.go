package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/reconnode/internal/metrics"
)

// MockJob implements the Job interface for testing
type MockJob struct {
	id       string
	jobType  string
	duration time.Duration
	err      error
	gate     chan struct{}
	panics   bool
	executed int32
}

func NewMockJob(id, jobType string, duration time.Duration, err error) *MockJob {
	return &MockJob{
		id:       id,
		jobType:  jobType,
		duration: duration,
		err:      err,
	}
}

func (m *MockJob) Execute(ctx context.Context) error {
	atomic.AddInt32(&m.executed, 1)
	if m.panics {
		panic("boom")
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.duration > 0 {
		select {
		case <-time.After(m.duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockJob) ID() string {
	return m.id
}

func (m *MockJob) Type() string {
	return m.jobType
}

func (m *MockJob) ExecutedCount() int32 {
	return atomic.LoadInt32(&m.executed)
}

func newTestPool(t *testing.T, size, queue int) (*Pool, *metrics.Registry) {
	t.Helper()
	registry := metrics.NewRegistry()
	pool := New(Config{
		Size:            size,
		QueueSize:       queue,
		ShutdownTimeout: 2 * time.Second,
		Metrics:         registry,
	})
	pool.Start()
	t.Cleanup(func() { _ = pool.Shutdown() })
	return pool, registry
}

func TestNewPool(t *testing.T) {
	t.Run("creates pool with valid configuration", func(t *testing.T) {
		pool := New(Config{Size: 5, QueueSize: 100})

		assert.NotNil(t, pool)
		assert.Equal(t, 100, cap(pool.jobs))
		assert.Equal(t, 5, pool.Stats().Workers)
	})

	t.Run("clamps zero values", func(t *testing.T) {
		pool := New(Config{})

		assert.Equal(t, 1, cap(pool.jobs))
		assert.Equal(t, 1, pool.Stats().Workers)
		assert.Equal(t, DefaultConfig().ShutdownTimeout, pool.config.ShutdownTimeout)
	})
}

func TestPoolExecutesJobs(t *testing.T) {
	pool, registry := newTestPool(t, 3, 10)
	ctx := context.Background()

	jobs := make([]*MockJob, 20)
	for i := range jobs {
		jobs[i] = NewMockJob(fmt.Sprintf("job-%d", i), "scan_task", time.Millisecond, nil)
		require.NoError(t, pool.Submit(ctx, jobs[i]))
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.WaitIdle(waitCtx))

	for _, job := range jobs {
		assert.Equal(t, int32(1), job.ExecutedCount(), "each job runs exactly once")
	}
	stats := pool.Stats()
	assert.Equal(t, uint64(20), stats.Completed)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, 0, pool.Pending())

	snapshot := registry.GetMetrics()
	assert.Equal(t, 20.0, snapshot["jobs_submitted_total:job_type=scan_task"].Value)
	assert.Equal(t, 20.0, snapshot["jobs_completed_total:job_type=scan_task"].Value)
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1)
	ctx := context.Background()

	gate := make(chan struct{})
	running := &MockJob{id: "running", jobType: "test", gate: gate}
	require.NoError(t, pool.Submit(ctx, running))
	require.Eventually(t, func() bool { return running.ExecutedCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, pool.Submit(ctx, NewMockJob("queued", "test", 0, nil)))
	assert.Equal(t, 1, pool.Pending())

	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.Submit(ctx, NewMockJob("blocked", "test", 0, nil))
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-submitted:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Submit did not unblock after the queue drained")
	}
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1)

	gate := make(chan struct{})
	defer close(gate)
	running := &MockJob{id: "running", jobType: "test", gate: gate}
	require.NoError(t, pool.Submit(context.Background(), running))
	require.Eventually(t, func() bool { return running.ExecutedCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(context.Background(), NewMockJob("queued", "test", 0, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, NewMockJob("late", "test", 0, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolWaitIdle(t *testing.T) {
	t.Run("returns immediately when nothing was submitted", func(t *testing.T) {
		pool, _ := newTestPool(t, 2, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		assert.NoError(t, pool.WaitIdle(ctx))
	})

	t.Run("waits for executing jobs, not only the queue", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 4)
		gate := make(chan struct{})
		job := &MockJob{id: "slow", jobType: "test", gate: gate}
		require.NoError(t, pool.Submit(context.Background(), job))
		require.Eventually(t, func() bool { return pool.Pending() == 0 && job.ExecutedCount() == 1 },
			time.Second, time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, pool.WaitIdle(ctx), context.DeadlineExceeded)

		close(gate)
		ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
		defer cancel2()
		assert.NoError(t, pool.WaitIdle(ctx2))
	})
}

func TestPoolSurvivesFailingJobs(t *testing.T) {
	pool, registry := newTestPool(t, 1, 10)
	ctx := context.Background()

	require.NoError(t, pool.Submit(ctx, NewMockJob("err", "test", 0, errors.New("probe failed"))))
	require.NoError(t, pool.Submit(ctx, &MockJob{id: "panic", jobType: "test", panics: true}))
	ok := NewMockJob("ok", "test", 0, nil)
	require.NoError(t, pool.Submit(ctx, ok))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, pool.WaitIdle(waitCtx))

	assert.Equal(t, int32(1), ok.ExecutedCount(), "worker must keep running after failures")
	assert.Equal(t, uint64(2), pool.Stats().Failed)
	assert.Equal(t, uint64(1), pool.Stats().Completed)
	assert.Equal(t, 2.0, registry.GetMetrics()["jobs_failed_total:job_type=test"].Value)
}

func TestPoolShutdown(t *testing.T) {
	t.Run("rejects submissions after shutdown", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, Metrics: metrics.NewRegistry()})
		pool.Start()
		require.NoError(t, pool.Shutdown())
		require.NoError(t, pool.Shutdown(), "second shutdown is a no-op")

		err := pool.Submit(context.Background(), NewMockJob("x", "test", 0, nil))
		assert.Error(t, err)
	})

	t.Run("cancels running jobs", func(t *testing.T) {
		pool := New(Config{Size: 2, QueueSize: 2, ShutdownTimeout: time.Second, Metrics: metrics.NewRegistry()})
		pool.Start()
		job := &MockJob{id: "blocked", jobType: "test", gate: make(chan struct{})}
		require.NoError(t, pool.Submit(context.Background(), job))
		require.Eventually(t, func() bool { return job.ExecutedCount() == 1 }, time.Second, time.Millisecond)

		assert.NoError(t, pool.Shutdown())
	})
}

func TestPoolConcurrentSubmitters(t *testing.T) {
	pool, _ := newTestPool(t, 4, 2)
	ctx := context.Background()

	var executed int64
	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				job := &countingJob{id: fmt.Sprintf("%d-%d", s, i), counter: &executed}
				assert.NoError(t, pool.Submit(ctx, job))
			}
		}(s)
	}
	wg.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.WaitIdle(waitCtx))
	assert.Equal(t, int64(200), atomic.LoadInt64(&executed))
}

type countingJob struct {
	id      string
	counter *int64
}

func (j *countingJob) Execute(context.Context) error {
	atomic.AddInt64(j.counter, 1)
	return nil
}

func (j *countingJob) ID() string   { return j.id }
func (j *countingJob) Type() string { return "counting" }
