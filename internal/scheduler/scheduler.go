// Package scheduler triggers scan cycles on a schedule. Each job asks the
// orchestrator to start a cycle; a trigger that arrives while a cycle is
// still running is skipped, never queued.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/reconnode/internal/logging"
)

// ScanStarter is the part of the orchestrator the scheduler drives.
type ScanStarter interface {
	// StartScan begins a cycle and reports false if one is already running.
	StartScan() bool
}

// Scheduler runs scan triggers from cron expressions or fixed intervals.
type Scheduler struct {
	cron    *cron.Cron
	starter ScanStarter
	logger  *logging.Logger
	now     func() time.Time

	mu      sync.RWMutex
	jobs    map[uuid.UUID]*ScheduledJob
	running bool
}

// ScheduledJob is one registered trigger.
type ScheduledJob struct {
	ID       uuid.UUID
	CronID   cron.EntryID
	Name     string
	Schedule string
	Enabled  bool
	LastRun  time.Time
	Runs     uint64
	Skipped  uint64
}

// JobInfo is a snapshot of a ScheduledJob with its next activation.
type JobInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Enabled  bool      `json:"enabled"`
	LastRun  time.Time `json:"lastRun"`
	NextRun  time.Time `json:"nextRun"`
	Runs     uint64    `json:"runs"`
	Skipped  uint64    `json:"skipped"`
}

// New creates a scheduler. Call Start to begin firing jobs.
func New(starter ScanStarter) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		starter: starter,
		logger:  logging.Default().WithComponent("scheduler"),
		now:     time.Now,
		jobs:    make(map[uuid.UUID]*ScheduledJob),
	}
}

// IntervalSchedule returns the cron descriptor for a fixed interval.
func IntervalSchedule(interval time.Duration) string {
	return "@every " + interval.String()
}

// AddIntervalJob fires every interval, measured from Start. Intervals are
// truncated to whole seconds and must be at least one second.
func (s *Scheduler) AddIntervalJob(name string, interval time.Duration) (uuid.UUID, error) {
	if interval < time.Second {
		return uuid.Nil, fmt.Errorf("interval %s is below one second", interval)
	}
	return s.add(name, IntervalSchedule(interval))
}

// AddCronJob fires on a standard five-field cron expression.
func (s *Scheduler) AddCronJob(name, cronExpr string) (uuid.UUID, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return uuid.Nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s.add(name, cronExpr)
}

func (s *Scheduler) add(name, schedule string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &ScheduledJob{
		ID:       uuid.New(),
		Name:     name,
		Schedule: schedule,
		Enabled:  true,
	}

	cronID, err := s.cron.AddFunc(schedule, func() { s.trigger(job.ID) })
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Added scan job", "job", name, "schedule", schedule)
	return job.ID, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	s.cron.Remove(job.CronID)
	delete(s.jobs, id)

	s.logger.Info("Removed scan job", "job", job.Name)
	return nil
}

// EnableJob resumes firing a disabled job.
func (s *Scheduler) EnableJob(id uuid.UUID) error {
	return s.setEnabled(id, true)
}

// DisableJob keeps the job registered but ignores its triggers.
func (s *Scheduler) DisableJob(id uuid.UUID) error {
	return s.setEnabled(id, false)
}

func (s *Scheduler) setEnabled(id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	job.Enabled = enabled
	return nil
}

// Jobs returns all registered jobs ordered by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		info := JobInfo{
			ID:       job.ID.String(),
			Name:     job.Name,
			Schedule: job.Schedule,
			Enabled:  job.Enabled,
			LastRun:  job.LastRun,
			Runs:     job.Runs,
			Skipped:  job.Skipped,
		}
		if s.running {
			info.NextRun = s.cron.Entry(job.CronID).Next
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop halts the cron loop and waits for a trigger in flight to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// trigger is the cron callback for job id.
func (s *Scheduler) trigger(id uuid.UUID) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || !job.Enabled {
		s.mu.Unlock()
		return
	}
	job.LastRun = s.now()
	name := job.Name
	s.mu.Unlock()

	started := s.starter.StartScan()

	s.mu.Lock()
	if started {
		job.Runs++
	} else {
		job.Skipped++
	}
	s.mu.Unlock()

	if started {
		s.logger.Info("Scheduled scan started", "job", name)
		return
	}
	s.logger.Info("Scan already running, skipping scheduled trigger", "job", name)
}
