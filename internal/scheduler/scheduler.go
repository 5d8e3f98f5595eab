// Package scheduler fires the ingestion triggers on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// ErrUnknownJob is returned when a job name is not registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is one named trigger and its cron schedule (UTC, five fields).
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Status describes a registered job.
type Status struct {
	Name     string    `json:"name"`
	Cron     string    `json:"cron"`
	LastRun  time.Time `json:"last_run"`
	NextRun  time.Time `json:"next_run"`
	RunCount int       `json:"run_count"`
	Running  bool      `json:"running"`
}

// Scheduler runs registered jobs in singleton mode: a job never overlaps
// itself, and a firing that arrives while it is still running is skipped.
type Scheduler struct {
	sched  *gocron.Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	jobs    map[string]Job
	handles map[string]*gocron.Job
}

// New creates a scheduler with no jobs.
func New(logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	s.TagsUnique()
	return &Scheduler{
		sched:   s,
		logger:  logger,
		ctx:     context.Background(),
		jobs:    make(map[string]Job),
		handles: make(map[string]*gocron.Job),
	}
}

// Register adds a job. Names must be unique and the cron expression valid.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("register job %q: already registered", job.Name)
	}
	h, err := s.sched.Cron(job.Cron).Tag(job.Name).Do(s.fire, job.Name)
	if err != nil {
		return fmt.Errorf("register job %q: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	s.handles[job.Name] = h
	return nil
}

// Start begins firing jobs. Scheduled runs use ctx and stop when it is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.sched.StartAsync()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.sched.Stop()
	s.logger.Info("scheduler stopped")
}

// Trigger asks the running scheduler to fire a job now. Singleton mode
// still applies.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("trigger %q: %w", name, ErrUnknownJob)
	}
	if err := s.sched.RunByTag(name); err != nil {
		return fmt.Errorf("trigger %q: %w", name, err)
	}
	return nil
}

// Run executes a job synchronously outside the schedule.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %q: %w", name, ErrUnknownJob)
	}
	return s.execute(ctx, job)
}

// Jobs returns the status of every registered job sorted by name.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.jobs))
	for name, job := range s.jobs {
		h := s.handles[name]
		out = append(out, Status{
			Name:     name,
			Cron:     job.Cron,
			LastRun:  h.LastRun(),
			NextRun:  h.NextRun(),
			RunCount: h.RunCount(),
			Running:  h.IsRunning(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) fire(name string) {
	s.mu.Lock()
	job := s.jobs[name]
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_ = s.execute(ctx, job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	start := time.Now()
	s.logger.Info("job started", "job", job.Name)
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.logger.Info("job completed", "job", job.Name, "duration", time.Since(start))
	return nil
}
