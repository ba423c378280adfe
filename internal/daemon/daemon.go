// Package daemon runs reconnode as a long-lived node: it owns the scan engine,
// the periodic scan trigger, the HTTP API and the process lifecycle (PID file,
// signals, graceful shutdown).
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/reconnode/internal/api"
	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/scheduler"
)

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

const intervalJobName = "scan-interval"

// Daemon represents the main daemon process.
type Daemon struct {
	config     *config.Config
	configPath string
	version    string

	engine    *Engine
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	jobID     uuid.UUID

	pidFile   string
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	debugMode bool
	mu        sync.RWMutex
}

// New creates a new daemon instance. configPath is re-read on SIGHUP.
func New(cfg *config.Config, configPath, version string) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:     cfg,
		configPath: configPath,
		version:    version,
		pidFile:    cfg.Daemon.PIDFile,
		logger:     logging.Default().WithComponent("daemon"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start initializes every component and blocks until the daemon is stopped
// by Stop or a termination signal.
func (d *Daemon) Start() error {
	d.logger.InfoDaemon("Starting reconnode daemon", "version", d.version)

	if err := d.config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	d.setupSignalHandlers()

	if err := d.init(); err != nil {
		d.cleanup()
		return err
	}

	d.logger.InfoDaemon("Daemon started successfully",
		"network", d.config.Scan.Network(),
		"api", d.apiServer != nil)
	return d.run()
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.logger.InfoDaemon("Stopping daemon")
	d.cancel()

	select {
	case <-d.done:
		d.logger.InfoDaemon("Daemon stopped gracefully")
	case <-time.After(d.config.Daemon.ShutdownTimeout):
		d.logger.Warn("Shutdown timeout reached, forcing exit")
	}
	return nil
}

func (d *Daemon) init() error {
	engine, err := BuildEngine(d.ctx, d.config, logging.Default())
	if err != nil {
		return fmt.Errorf("failed to build scan engine: %w", err)
	}
	d.mu.Lock()
	d.engine = engine
	d.mu.Unlock()

	d.scheduler = scheduler.New(engine.Orchestrator)
	if err := d.applyInterval(d.config.Scan.Interval); err != nil {
		return fmt.Errorf("failed to schedule scans: %w", err)
	}

	if err := d.initAPIServer(); err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}
	return nil
}

// applyInterval replaces the periodic scan job. A zero interval disables it.
func (d *Daemon) applyInterval(interval time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.jobID != uuid.Nil {
		if err := d.scheduler.RemoveJob(d.jobID); err != nil {
			return err
		}
		d.jobID = uuid.Nil
	}
	if interval <= 0 {
		d.logger.InfoDaemon("Periodic scanning disabled")
		return nil
	}

	id, err := d.scheduler.AddIntervalJob(intervalJobName, interval)
	if err != nil {
		return err
	}
	d.jobID = id
	d.logger.InfoDaemon("Periodic scanning scheduled", "interval", interval.String())
	return nil
}

// initAPIServer initializes the API server.
func (d *Daemon) initAPIServer() error {
	if !d.config.API.Enabled {
		d.logger.InfoDaemon("API server disabled, skipping initialization")
		return nil
	}

	server, err := api.New(d.config.API, api.Options{
		Controller: d.engine.Orchestrator,
		History:    d.engine.HistoryBackend(),
		Schedule:   d.scheduler,
		Services:   d.engine.ServicesBackend(),
		Gatherer:   d.engine.Metrics.GetRegistry(),
		Version:    d.version,
	})
	if err != nil {
		return err
	}
	d.apiServer = server
	return nil
}

// createPIDFile creates the PID file.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return errors.WrapConfigError(errors.CodeDirectoryCreate, "failed to create PID file directory", err)
	}

	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return errors.WrapConfigError(errors.CodeFilePermission, "failed to write PID file", err)
	}

	d.logger.InfoDaemon("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID fails if the PID file names a live process and removes a
// stale one.
func (d *Daemon) checkExistingPID() error {
	pid, err := ReadPIDFile(d.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		_ = os.Remove(d.pidFile)
		return nil
	}

	if IsProcessRunning(pid) {
		return errors.NewConfigFieldError(errors.CodeAlreadyRunning, "daemon already running", "daemon.pid_file", pid)
	}

	_ = os.Remove(d.pidFile)
	return nil
}

// ReadPIDFile returns the PID stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied PID path
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// setupSignalHandlers sets up signal handling for graceful shutdown.
func (d *Daemon) setupSignalHandlers() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,  // reload config
		syscall.SIGUSR1, // dump status
		syscall.SIGUSR2, // toggle debug logging
	)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-d.ctx.Done():
				return
			case sig := <-sigChan:
				d.handleSignal(sig)
			}
		}
	}()
}

func (d *Daemon) handleSignal(sig os.Signal) {
	d.logger.InfoDaemon("Received signal", "signal", sig.String())

	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		d.cancel()
	case syscall.SIGHUP:
		if err := d.reloadConfiguration(); err != nil {
			d.logger.ErrorDaemon("Configuration reload failed", err)
		} else {
			d.logger.InfoDaemon("Configuration reloaded successfully")
		}
	case syscall.SIGUSR1:
		d.dumpStatus()
	case syscall.SIGUSR2:
		d.toggleDebugMode()
	}
}

// run executes the main daemon loop.
func (d *Daemon) run() error {
	defer close(d.done)
	defer d.cleanup()

	if err := d.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	go d.engine.Metrics.StartPeriodicUpdates(d.ctx, d.config.Daemon.HealthCheckInterval)

	apiErr := make(chan error, 1)
	if d.apiServer != nil {
		go func() {
			apiErr <- d.apiServer.Start(d.ctx)
		}()
	}

	if d.config.Daemon.ScanOnStart {
		d.engine.Orchestrator.StartScan()
	}

	ticker := time.NewTicker(d.config.Daemon.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.InfoDaemon("Shutdown signal received")
			return nil
		case err := <-apiErr:
			if err != nil {
				d.logger.ErrorDaemon("API server stopped", err)
				d.cancel()
				return err
			}
		case <-ticker.C:
			d.performHealthCheck()
		}
	}
}

// performHealthCheck pings the history database.
func (d *Daemon) performHealthCheck() {
	if d.engine.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()
	if err := d.engine.History.Ping(ctx); err != nil {
		d.logger.ErrorStore("History health check failed", err, "retryable", errors.IsRetryable(err))
	}
}

// cleanup stops the scheduler, lets a running cycle finalize within the
// shutdown timeout, then releases the engine and the PID file.
func (d *Daemon) cleanup() {
	d.logger.InfoDaemon("Performing cleanup")

	if d.scheduler != nil {
		d.scheduler.Stop()
	}

	if d.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Daemon.ShutdownTimeout)
		if err := d.engine.Orchestrator.Wait(ctx); err != nil {
			d.logger.Warn("Scan still running at shutdown, abandoning it",
				"scan_id", d.engine.Orchestrator.LastScanID())
		}
		cancel()

		if err := d.engine.Close(); err != nil {
			d.logger.ErrorDaemon("Error closing scan engine", err)
		}
	}

	if d.pidFile != "" {
		if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
			d.logger.ErrorDaemon("Error removing PID file", err, "path", d.pidFile)
		}
	}

	d.logger.InfoDaemon("Cleanup completed")
}

// GetPID returns the daemon's PID.
func (d *Daemon) GetPID() int {
	return os.Getpid()
}

// IsRunning checks if the daemon is running.
func (d *Daemon) IsRunning() bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
		return true
	}
}

// reloadConfiguration re-reads the config file. The scan section applies to
// the next cycle, including a new network prefix, and the periodic interval
// is rescheduled. Pool size, listener, history and publish settings require
// a restart.
func (d *Daemon) reloadConfiguration() error {
	if d.configPath == "" {
		return fmt.Errorf("no configuration file to reload")
	}

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d.mu.Lock()
	old := d.config
	d.config = newConfig
	d.mu.Unlock()

	if d.engine != nil {
		d.engine.Orchestrator.SetConfig(newConfig.Scan)
	}
	if d.scheduler != nil && old.Scan.Interval != newConfig.Scan.Interval {
		if err := d.applyInterval(newConfig.Scan.Interval); err != nil {
			return fmt.Errorf("failed to reschedule scans: %w", err)
		}
	}
	if old.Scan.WorkerThreads != newConfig.Scan.WorkerThreads || old.Scan.QueueSize != newConfig.Scan.QueueSize {
		d.logger.Warn("Worker pool size changed, restart required",
			"worker_threads", newConfig.Scan.WorkerThreads, "queue_size", newConfig.Scan.QueueSize)
	}
	if old.API.Address() != newConfig.API.Address() {
		d.logger.Warn("API address changed, restart required",
			"old", old.API.Address(), "new", newConfig.API.Address())
	}
	return nil
}

// dumpStatus logs the engine state.
func (d *Daemon) dumpStatus() {
	engine := d.Engine()
	if engine == nil {
		return
	}
	orch := engine.Orchestrator
	stats := orch.Store().Stats()
	progress := orch.Progress()

	d.logger.InfoDaemon("Daemon status",
		"pid", d.GetPID(),
		"state", orch.State().String(),
		"scan_id", orch.LastScanID(),
		"percent_complete", progress.PercentComplete,
		"endpoints", orch.Store().Count(),
		"total_scans", stats.TotalScans,
		"total_open_ports", stats.TotalOpenPorts,
		"debug", d.IsDebugMode())

	if d.scheduler != nil {
		for _, job := range d.scheduler.Jobs() {
			d.logger.InfoDaemon("Scheduled job",
				"name", job.Name,
				"schedule", job.Schedule,
				"runs", job.Runs,
				"skipped", job.Skipped)
		}
	}
}

// toggleDebugMode switches the default logger between debug and the
// configured level.
func (d *Daemon) toggleDebugMode() {
	d.mu.Lock()
	d.debugMode = !d.debugMode
	cfg := d.config.Logging
	if d.debugMode {
		cfg.Level = logging.LevelDebug
	}
	debug := d.debugMode
	d.mu.Unlock()

	logger, err := logging.New(cfg)
	if err != nil {
		d.logger.ErrorDaemon("Failed to rebuild logger", err)
		return
	}
	logging.SetDefault(logger)
	d.logger.InfoDaemon("Debug mode toggled", "debug", debug)
}

// IsDebugMode reports whether debug logging is on.
func (d *Daemon) IsDebugMode() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.debugMode
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Engine returns the scan engine once Start has initialized it.
func (d *Daemon) Engine() *Engine {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.engine
}
