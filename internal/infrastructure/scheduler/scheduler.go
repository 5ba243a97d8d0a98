// Package scheduler runs the worker's periodic jobs on top of gocron.
// Jobs are plain Run(ctx) units; the scheduler adds timeouts, singleton
// execution, structured logs and a per-job result record.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/learnhub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled on timeout or when the scheduler stops.
	Run(ctx context.Context) error

	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ErrJobNotFound is returned by RunNow for an unregistered name.
var ErrJobNotFound = errors.New("scheduler: job not found")

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *logger.Logger

	// Location for cron expressions (default: UTC).
	Location *time.Location

	// JobTimeout bounds a single run. Zero means no timeout.
	JobTimeout time.Duration

	// MaxConcurrentJobs caps parallel runs across all jobs. Zero means unlimited.
	MaxConcurrentJobs int

	// OnJobComplete is called after every run, successful or not.
	OnJobComplete func(result JobResult)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Location:          time.UTC,
		JobTimeout:        5 * time.Minute,
		MaxConcurrentJobs: 2,
	}
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	cron   gocron.Scheduler
	config Config
	log    *logger.Logger

	jobs     map[string]Job
	lastRuns map[string]JobResult

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Jobs are registered with AddCron and AddInterval
// and start firing after Start.
func New(config Config) (*Scheduler, error) {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	opts := []gocron.SchedulerOption{gocron.WithLocation(config.Location)}
	if config.MaxConcurrentJobs > 0 {
		opts = append(opts, gocron.WithLimitConcurrentJobs(uint(config.MaxConcurrentJobs), gocron.LimitModeReschedule))
	}
	cron, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron,
		config:   config,
		log:      config.Logger.With(logger.Component("scheduler")),
		jobs:     make(map[string]Job),
		lastRuns: make(map[string]JobResult),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// AddCron registers job on a five-field cron expression.
func (s *Scheduler) AddCron(job Job, expr string) error {
	return s.add(job, gocron.CronJob(expr, false), expr)
}

// AddInterval registers job to run every interval.
func (s *Scheduler) AddInterval(job Job, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: job %s: interval must be positive", job.Name())
	}
	return s.add(job, gocron.DurationJob(every), "every "+every.String())
}

func (s *Scheduler) add(job Job, def gocron.JobDefinition, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", name)
	}

	_, err := s.cron.NewJob(def,
		gocron.NewTask(func() { s.run(s.ctx, job) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}
	s.jobs[name] = job
	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule),
		logger.String("description", job.Description()),
	)
	return nil
}

// Start begins firing jobs. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.Jobs())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(ctx, job), nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastRun returns the most recent result of a job.
func (s *Scheduler) LastRun(name string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRuns[name]
	return r, ok
}

func (s *Scheduler) run(ctx context.Context, job Job) JobResult {
	name := job.Name()
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	log := s.log.With(logger.String("job", name))
	log.Debug("job started")

	started := time.Now()
	err := safeRun(ctx, job)
	completed := time.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	s.lastRuns[name] = result
	s.mu.Unlock()

	if err != nil {
		log.Error("job failed", logger.Err(err), logger.Duration("duration", result.Duration))
	} else {
		log.Info("job completed", logger.Duration("duration", result.Duration))
	}
	if s.config.OnJobComplete != nil {
		s.config.OnJobComplete(result)
	}
	return result
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
