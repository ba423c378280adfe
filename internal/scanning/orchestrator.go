package scanning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/metrics"
	"github.com/anstrom/reconnode/internal/publish"
	"github.com/anstrom/reconnode/internal/results"
	"github.com/anstrom/reconnode/internal/workers"
)

const (
	// DefaultDrainTimeout bounds the wait for queued tasks at the end of a cycle.
	DefaultDrainTimeout = 5 * time.Minute
	// DefaultPausePollInterval is how often a paused worker rechecks the state.
	DefaultPausePollInterval = 100 * time.Millisecond
	// DefaultTopicPrefix prefixes every published topic.
	DefaultTopicPrefix = "portscan"

	bucketUnknown = "unknown"
	bucketKnown   = "known"
)

// Deps are the collaborators of an Orchestrator. Store and Prober are
// required; every other field may be left nil.
type Deps struct {
	Store     *results.Store
	Prober    PortProbe
	Discovery DiscoveryProbe
	Liveness  LivenessProbe
	Resolver  HostnameResolver
	Hardware  HardwareLookup
	Publisher Publisher
	History   HistoryRecorder

	// Pool executes tasks. When nil, one is created from the scan config.
	Pool *workers.Pool

	Metrics     *metrics.PrometheusMetrics
	Logger      *logging.Logger
	TopicPrefix string
	Now         func() time.Time
}

// Orchestrator runs scan cycles. It is safe for concurrent use.
type Orchestrator struct {
	deps    Deps
	pool    *workers.Pool
	metrics *metrics.PrometheusMetrics
	logger  *logging.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu     sync.Mutex
	cfg    config.ScanConfig
	done   chan struct{}
	lastID string

	progressMu sync.Mutex
	progress   Progress
}

// scanRun carries the config snapshot and identity of one cycle.
type scanRun struct {
	id     string
	cfg    config.ScanConfig
	logger *logging.Logger
}

// New creates an Orchestrator in the Idle state and starts its worker pool.
func New(cfg config.ScanConfig, deps Deps) *Orchestrator {
	if deps.Store == nil {
		deps.Store = results.NewDefault()
	}
	if deps.TopicPrefix == "" {
		deps.TopicPrefix = DefaultTopicPrefix
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewPrometheusMetrics()
	}

	pool := deps.Pool
	if pool == nil {
		pool = workers.New(workers.Config{
			Size:      cfg.WorkerThreads,
			QueueSize: cfg.QueueSize,
		})
	}
	pool.Start()

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:    deps,
		pool:    pool,
		metrics: deps.Metrics,
		logger:  deps.Logger.WithComponent("orchestrator"),
		now:     deps.Now,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
	}
	o.state.Store(int32(StateIdle))
	return o
}

// SetConfig replaces the scan config used by the next StartScan. A running
// cycle keeps the snapshot it started with.
func (o *Orchestrator) SetConfig(cfg config.ScanConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
}

// Config returns the scan config the next cycle will use.
func (o *Orchestrator) Config() config.ScanConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Store returns the result store the orchestrator writes to.
func (o *Orchestrator) Store() *results.Store {
	return o.deps.Store
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// IsScanning reports whether a cycle is running, paused or not.
func (o *Orchestrator) IsScanning() bool {
	return o.State() != StateIdle
}

// LastScanID returns the id of the most recently started cycle.
func (o *Orchestrator) LastScanID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastID
}

// Progress returns a snapshot of the running cycle's progress, or the zero
// value when no cycle is running.
func (o *Orchestrator) Progress() Progress {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	return o.progress
}

// StartScan begins a cycle on its own goroutine. It returns false and does
// nothing if a cycle is already running.
func (o *Orchestrator) StartScan() bool {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		o.logger.Debug("Scan already running, start ignored")
		return false
	}

	id := uuid.New().String()
	done := make(chan struct{})

	o.mu.Lock()
	run := &scanRun{
		id:     id,
		cfg:    o.cfg,
		logger: o.logger.WithScanID(id),
	}
	o.lastID = id
	o.done = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		o.executeScan(o.ctx, run)
	}()
	return true
}

// PauseScan suspends workers between probes. Valid only while scanning.
func (o *Orchestrator) PauseScan() bool {
	if !o.state.CompareAndSwap(int32(StateScanning), int32(StatePaused)) {
		return false
	}
	o.metrics.SetPaused(true)
	o.logger.Info("Scan paused")
	return true
}

// ResumeScan releases paused workers. Valid only while paused.
func (o *Orchestrator) ResumeScan() bool {
	if !o.state.CompareAndSwap(int32(StatePaused), int32(StateScanning)) {
		return false
	}
	o.metrics.SetPaused(false)
	o.logger.Info("Scan resumed")
	return true
}

// Wait blocks until the current cycle, if any, has finalized or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker pool. A running cycle is abandoned.
func (o *Orchestrator) Close() error {
	o.cancel()
	return o.pool.Shutdown()
}

func (o *Orchestrator) paused() bool {
	return o.State() == StatePaused
}

// waitWhilePaused blocks while the orchestrator is paused. It returns false
// if ctx ends first.
func (o *Orchestrator) waitWhilePaused(ctx context.Context, poll time.Duration) bool {
	if !o.paused() {
		return true
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for o.paused() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (o *Orchestrator) executeScan(ctx context.Context, run *scanRun) {
	cfg := run.cfg
	started := o.now()

	o.publish(ctx, run, publish.StatusTopic(o.deps.TopicPrefix), publish.Started(), "status")
	run.logger.InfoScan("Starting scan", cfg.Network(),
		"start_ip", cfg.StartIP,
		"end_ip", cfg.EndIP,
		"start_port", cfg.StartPort,
		"end_port", cfg.EndPort)

	discovered := o.discover(ctx, run)
	plan := Prioritize(discovered, cfg.StartIP, cfg.EndIP, o.deps.Store.HasEndpoint)
	run.logger.Info("Scan strategy",
		"discovered", len(discovered),
		"unknown", len(plan.Unknown),
		"known", len(plan.Known))

	totalIPs := uint32(plan.Len())
	o.resetProgress(Progress{
		TotalIPs:   totalIPs,
		TotalPorts: uint32(cfg.PortCount()) * totalIPs,
	})

	chunk := ChunkSize(cfg.PortCount(), cfg.WorkerThreads)
	var (
		ipsScanned   uint32
		portsChecked uint32
		visited      []uint8
	)

	buckets := []struct {
		name  string
		hosts []uint8
	}{
		{bucketUnknown, plan.Unknown},
		{bucketKnown, plan.Known},
	}

enqueue:
	for _, bucket := range buckets {
		for _, hostID := range bucket.hosts {
			addr := cfg.HostAddr(hostID)
			o.updateProgress(func(p *Progress) {
				p.CurrentHost = addr
				p.CurrentPort = 0
			})

			if !o.isAlive(ctx, cfg, hostID) {
				o.metrics.IncrementHostsVisited(bucket.name, "down")
				continue
			}
			o.metrics.IncrementHostsVisited(bucket.name, "alive")
			o.resolveHostname(ctx, run, hostID)
			o.recordHardwareAddr(run, hostID)

			ipsScanned++
			visited = append(visited, hostID)
			o.updateProgress(func(p *Progress) {
				p.IPsScanned = ipsScanned
				if totalIPs > 0 {
					p.PercentComplete = uint8(uint64(ipsScanned) * 100 / uint64(totalIPs))
				}
			})

			for _, task := range Chunks(hostID, cfg.StartPort, cfg.EndPort, chunk) {
				job := &taskJob{orch: o, run: run, task: task}
				if err := o.pool.Submit(ctx, job); err != nil {
					run.logger.Warn("Stopped enqueueing tasks", "task", task.String(), "error", err)
					break enqueue
				}
				portsChecked += uint32(task.Size())
				o.metrics.SetQueueDepth(o.pool.Pending())
			}
		}
	}

	drainTimedOut := o.drain(ctx, run)
	o.finalize(ctx, run, started, plan, visited, ipsScanned, portsChecked, drainTimedOut)
}

// discover runs the sweep and returns the active hosts. A failed sweep yields
// whatever the probe still reports, possibly nothing.
func (o *Orchestrator) discover(ctx context.Context, run *scanRun) []uint8 {
	if o.deps.Discovery == nil {
		return nil
	}

	prefix := run.cfg.NetworkPrefix
	start := time.Now()
	if err := o.deps.Discovery.Sweep(ctx, prefix); err != nil {
		o.metrics.IncrementDiscoveryErrors("sweep")
		run.logger.ErrorDiscovery("Discovery sweep failed, scanning full range", run.cfg.Network(), err,
			"retryable", errors.IsRetryable(err))
	}
	hosts := o.deps.Discovery.ActiveHosts(prefix)
	o.metrics.RecordDiscovery(time.Since(start), len(hosts))
	run.logger.InfoDiscovery("Discovery sweep finished", run.cfg.Network(), "active_hosts", len(hosts))
	return hosts
}

func (o *Orchestrator) isAlive(ctx context.Context, cfg config.ScanConfig, hostID uint8) bool {
	if cfg.SkipHostCheck || o.deps.Liveness == nil {
		return true
	}
	return o.deps.Liveness.IsAlive(ctx, cfg.NetworkPrefix, hostID)
}

func (o *Orchestrator) resolveHostname(ctx context.Context, run *scanRun, hostID uint8) {
	if o.deps.Resolver == nil {
		return
	}
	name, ok := o.deps.Resolver.Resolve(ctx, run.cfg.NetworkPrefix, hostID)
	if !ok || name == "" {
		return
	}
	o.deps.Store.UpdateHostname(hostID, name)
	run.logger.Debug("Resolved hostname", "target", run.cfg.HostAddr(hostID), "hostname", name)
}

func (o *Orchestrator) recordHardwareAddr(run *scanRun, hostID uint8) {
	if o.deps.Hardware == nil {
		return
	}
	mac, ok := o.deps.Hardware.HardwareAddr(run.cfg.NetworkPrefix, hostID)
	if !ok || mac == "" {
		return
	}
	o.deps.Store.UpdateHardwareAddr(hostID, mac)
}

// drain waits for queued and executing tasks, bounded by the drain timeout.
// It reports whether the bound was hit.
func (o *Orchestrator) drain(ctx context.Context, run *scanRun) bool {
	timeout := run.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.pool.WaitIdle(waitCtx); err != nil {
		o.metrics.IncrementDrainTimeouts()
		drainErr := errors.ErrDrainTimeout(o.pool.Pending(), err)
		run.logger.Warn("Timeout waiting for workers, completing anyway",
			"error", drainErr,
			"code", errors.GetCode(drainErr),
			"timeout", timeout,
			"queued", o.pool.Pending())
		return true
	}
	return false
}

func (o *Orchestrator) finalize(ctx context.Context, run *scanRun, started time.Time, plan Plan,
	visited []uint8, ipsScanned, portsChecked uint32, drainTimedOut bool) {
	finished := o.now()
	elapsed := finished.Sub(started)
	duration := uint32(elapsed / time.Second)

	store := o.deps.Store
	store.UpdateScanStats(ipsScanned, portsChecked, duration)
	store.MarkScanned(visited)
	count := store.Count()

	o.publish(ctx, run, publish.StatusTopic(o.deps.TopicPrefix),
		publish.Complete(int64(duration), count), "status")

	if o.deps.History != nil {
		err := o.deps.History.RecordCycle(ctx, Cycle{
			ID:              run.id,
			StartedAt:       started,
			FinishedAt:      finished,
			DurationSeconds: duration,
			HostsPlanned:    plan.Len(),
			IPsScanned:      ipsScanned,
			PortsChecked:    portsChecked,
			OpenResults:     count,
			DrainTimedOut:   drainTimedOut,
		})
		if err != nil {
			o.metrics.IncrementHistoryWrites("error")
			run.logger.ErrorStore("Failed to record scan cycle", err, "retryable", errors.IsRetryable(err))
		} else {
			o.metrics.IncrementHistoryWrites("success")
		}
	}

	status := "complete"
	if drainTimedOut {
		status = "drain_timeout"
	}
	o.metrics.IncrementScansTotal(status)
	o.metrics.RecordScanDuration(elapsed)
	o.metrics.SetQueueDepth(o.pool.Pending())

	run.logger.InfoScan("Scan complete", run.cfg.Network(),
		"duration_seconds", duration,
		"results", count,
		"ips_scanned", ipsScanned,
		"ports_checked", portsChecked,
		"queue_remaining", o.pool.Pending())

	o.resetProgress(Progress{})
	o.metrics.SetPaused(false)
	o.state.Store(int32(StateIdle))
}

func (o *Orchestrator) publish(ctx context.Context, run *scanRun, topic, payload, kind string) {
	if !run.cfg.EnablePublish || o.deps.Publisher == nil {
		return
	}
	if !o.deps.Publisher.Publish(ctx, topic, payload) {
		o.metrics.IncrementPublishFailures(kind)
	}
}

func (o *Orchestrator) resetProgress(p Progress) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.progress = p
}

func (o *Orchestrator) updateProgress(fn func(p *Progress)) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	fn(&o.progress)
}
