// Package workers provides the fixed-size goroutine pool that executes scan
// tasks. The queue is a bounded channel: Submit blocks while it is full, which
// is the backpressure the orchestrator relies on. Workers never exit while the
// pool is running; a failing or panicking job is logged and counted.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// Metrics receives job counters. Defaults to the package registry.
	Metrics metrics.MetricsRegistry
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            12,
		QueueSize:       200,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Active    int64  `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Pool manages a fixed set of worker goroutines fed from one bounded queue.
type Pool struct {
	config  Config
	metrics metrics.MetricsRegistry
	jobs    chan Job
	wg      sync.WaitGroup

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown atomic.Bool

	startOnce sync.Once

	// pending counts jobs accepted by Submit that have not finished executing.
	idleMu  sync.Mutex
	pending int64
	idle    chan struct{}

	active    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a worker pool. Call Start before submitting.
func New(config Config) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	registry := config.Metrics
	if registry == nil {
		registry = metrics.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Pool{
		config:  config,
		metrics: registry,
		jobs:    make(chan Job, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		idle:    idle,
	}
}

// Start launches the workers. Subsequent calls are no-ops.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}

		p.metrics.Gauge("worker_pool_size", float64(p.config.Size), metrics.Labels{
			metrics.LabelComponent: "workers",
		})
	})
}

// Submit enqueues job, blocking while the queue is full. It returns an error
// only if the pool is shut down or ctx ends first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.shutdown.Load() {
		return fmt.Errorf("worker pool is shut down")
	}

	p.addPending(1)
	select {
	case p.jobs <- job:
		p.metrics.Counter(metrics.MetricJobsSubmitted, metrics.Labels{
			metrics.LabelJobType: job.Type(),
		})
		p.metrics.Gauge(metrics.MetricQueueDepth, float64(len(p.jobs)), nil)
		return nil
	case <-ctx.Done():
		p.addPending(-1)
		return ctx.Err()
	case <-p.ctx.Done():
		p.addPending(-1)
		return fmt.Errorf("worker pool is shutting down")
	}
}

// WaitIdle blocks until no job is queued or executing, or ctx ends.
func (p *Pool) WaitIdle(ctx context.Context) error {
	p.idleMu.Lock()
	idle := p.idle
	p.idleMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Stats returns counters for the pool.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.config.Size,
		Queued:    len(p.jobs),
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown stops the workers after their current job. Queued jobs are dropped.
func (p *Pool) Shutdown() error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	logging.Info("Shutting down worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Worker pool shutdown completed")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Worker pool shutdown timeout, workers still running",
			"active", p.active.Load())
		return fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
	}
}

func (p *Pool) addPending(delta int64) {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	before := p.pending
	p.pending += delta
	switch {
	case before == 0 && p.pending > 0:
		p.idle = make(chan struct{})
	case before > 0 && p.pending == 0:
		close(p.idle)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	logging.Debug("Worker started", "worker_id", id)
	defer logging.Debug("Worker stopped", "worker_id", id)

	for {
		select {
		case job := <-p.jobs:
			p.execute(id, job)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) execute(workerID int, job Job) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.addPending(-1)
	}()

	timer := metrics.NewTimerFor(p.metrics, metrics.MetricJobDuration, metrics.Labels{
		metrics.LabelJobType: job.Type(),
	})

	err := p.safeExecute(job)
	duration := timer.Stop()

	if err != nil {
		p.failed.Add(1)
		p.metrics.Counter(metrics.MetricJobsFailed, metrics.Labels{
			metrics.LabelJobType: job.Type(),
		})
		logging.Error("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"worker_id", workerID,
			"error", err)
		return
	}

	p.completed.Add(1)
	p.metrics.Counter(metrics.MetricJobsCompleted, metrics.Labels{
		metrics.LabelJobType: job.Type(),
	})
	logging.Debug("Job completed",
		"job_id", job.ID(),
		"job_type", job.Type(),
		"duration", duration,
		"worker_id", workerID)
}

// safeExecute converts a panicking job into an error so the worker survives.
func (p *Pool) safeExecute(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(p.ctx)
}
