// Package scheduler runs the configured "yesterday" lead exports on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wesm/leadvault/internal/config"
)

// ExportFunc runs one scheduled export.
type ExportFunc func(ctx context.Context, job config.ExportSchedule) error

// JobStatus is the state of one scheduled export.
type JobStatus struct {
	Name      string    `json:"name"`
	FormID    string    `json:"form_id"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler manages cron-based export jobs.
type Scheduler struct {
	cron     *cron.Cron
	exportFn ExportFunc
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]cron.EntryID          // name -> cron entry
	jobs    map[string]config.ExportSchedule // name -> job
	running map[string]bool
	lastRun map[string]time.Time // last successful run
	lastErr map[string]error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running export goroutines
	started bool
	stopped bool
}

// New creates a Scheduler. Cron expressions are evaluated in loc; nil
// means the local zone.
func New(fn ExportFunc, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithParser(standardParser), cron.WithLocation(loc)),
		exportFn: fn,
		logger:   slog.Default(),
		entries:  make(map[string]cron.EntryID),
		jobs:     make(map[string]config.ExportSchedule),
		running:  make(map[string]bool),
		lastRun:  make(map[string]time.Time),
		lastErr:  make(map[string]error),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules job, replacing any job with the same name.
func (s *Scheduler) AddJob(job config.ExportSchedule) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.entries[job.Name]; exists {
		s.cron.Remove(id)
		delete(s.entries, job.Name)
		delete(s.jobs, job.Name)
	}

	name := job.Name
	id, err := s.cron.AddFunc(job.Schedule, func() {
		s.mu.Lock()
		if s.stopped || s.running[name] {
			s.mu.Unlock()
			return
		}
		s.running[name] = true
		s.wg.Add(1)
		j := s.jobs[name]
		s.mu.Unlock()
		s.run(j)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}

	s.entries[name] = id
	s.jobs[name] = job
	s.logger.Info("scheduled export",
		"job", name,
		"form", job.FormID,
		"schedule", job.Schedule,
		"next_run", s.cron.Entry(id).Next)
	return nil
}

// AddJobsFromConfig adds every enabled schedule from cfg. It returns how
// many were scheduled and the errors for the rest.
func (s *Scheduler) AddJobsFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0
	for _, job := range cfg.ScheduledExports() {
		if err := s.AddJob(job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// RemoveJob unschedules a job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.entries[name]; exists {
		s.cron.Remove(id)
		delete(s.entries, name)
		delete(s.jobs, name)
		s.logger.Info("removed schedule", "job", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler and cancels running exports. The returned
// context is done when all of them have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// run executes one job. The caller has already called wg.Add(1) and set
// running[job.Name].
func (s *Scheduler) run(job config.ExportSchedule) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled export", "job", job.Name, "form", job.FormID)
	start := time.Now()

	err := s.exportFn(s.ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr[job.Name] = err
		s.logger.Error("scheduled export failed",
			"job", job.Name,
			"duration", time.Since(start),
			"error", err)
		return
	}
	s.lastRun[job.Name] = time.Now()
	s.lastErr[job.Name] = nil
	s.logger.Info("scheduled export completed",
		"job", job.Name,
		"duration", time.Since(start))
}

// IsScheduled reports whether a job with that name exists.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.entries[name]
	return exists
}

// TriggerRun starts a job now, outside its schedule. It fails if the job
// is unknown, already running, or the scheduler is stopped.
func (s *Scheduler) TriggerRun(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	if s.running[name] {
		return fmt.Errorf("export already running for %s", name)
	}

	s.running[name] = true
	s.wg.Add(1)
	go s.run(job)
	return nil
}

// Status returns every job's state, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.entries))
	for name, id := range s.entries {
		job := s.jobs[name]
		st := JobStatus{
			Name:     name,
			FormID:   job.FormID,
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  s.cron.Entry(id).Next,
			Schedule: job.Schedule,
		}
		if err := s.lastErr[name]; err != nil {
			st.LastError = err.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
