package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var ErrJobNotFound = errors.New("job not found")

// JobHandler runs one execution of a job. The returned string is kept as
// the execution's output.
type JobHandler func(ctx context.Context) (string, error)

// Job is a named handler on a cron schedule.
type Job struct {
	ID          string
	Description string
	Schedule    string
	Timeout     time.Duration
	Handler     JobHandler
}

// JobInfo describes a registered job for status views.
type JobInfo struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

// JobExecution tracks job execution history
type JobExecution struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	JobID     string          `json:"jobId" db:"job_id"`
	Status    ExecutionStatus `json:"status" db:"status"`
	StartedAt time.Time       `json:"startedAt" db:"started_at"`
	EndedAt   *time.Time      `json:"endedAt,omitempty" db:"ended_at"`
	Error     string          `json:"error,omitempty" db:"error"`
	Output    string          `json:"output,omitempty" db:"output"`
}

type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusSkipped   ExecutionStatus = "skipped"
)

// Store persists execution history.
type Store interface {
	CreateExecution(ctx context.Context, exec *JobExecution) error
	UpdateExecution(ctx context.Context, exec *JobExecution) error
	GetJobExecutions(ctx context.Context, jobID string, limit int) ([]*JobExecution, error)
}

type registered struct {
	job     Job
	entryID cron.EntryID
	lastRun *time.Time
	running bool
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron   *cron.Cron
	store  Store
	jobs   map[string]*registered
	mu     sync.RWMutex
	wg     sync.WaitGroup
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates a new scheduler. store may be nil, in which case
// executions are only logged.
func NewScheduler(store Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		store:  store,
		jobs:   make(map[string]*registered),
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// Register schedules job. Registering an id twice replaces the schedule.
func (s *Scheduler) Register(job Job) error {
	if job.ID == "" || job.Handler == nil {
		return fmt.Errorf("job id and handler are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		s.cron.Remove(existing.entryID)
		delete(s.jobs, job.ID)
	}

	id := job.ID
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.execute(context.Background(), id)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}
	s.jobs[job.ID] = &registered{job: job, entryID: entryID}

	s.logger.Info("scheduled job",
		"job_id", job.ID,
		"schedule", job.Schedule)

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs_count", len(s.jobs))
}

// Stop stops scheduling and waits for running jobs, including ones started
// by RunJobNow, until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// RunJobNow starts an execution in the background.
func (s *Scheduler) RunJobNow(id string) error {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}

	go s.execute(context.Background(), id)
	return nil
}

// Jobs lists registered jobs with their last and next run times.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, r := range s.jobs {
		info := JobInfo{
			ID:          r.job.ID,
			Description: r.job.Description,
			Schedule:    r.job.Schedule,
			LastRun:     r.lastRun,
			Running:     r.running,
		}
		if entry := s.cron.Entry(r.entryID); entry.ID != 0 && !entry.Next.IsZero() {
			next := entry.Next
			info.NextRun = &next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Executions returns recent executions of a job, newest first.
func (s *Scheduler) Executions(ctx context.Context, id string, limit int) ([]*JobExecution, error) {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	if s.store == nil {
		return []*JobExecution{}, nil
	}
	return s.store.GetJobExecutions(ctx, id, limit)
}

// execute runs a job once. An execution that would overlap a running one
// is recorded as skipped.
func (s *Scheduler) execute(ctx context.Context, id string) *JobExecution {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	r, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	startTime := s.now()
	exec := &JobExecution{
		ID:        uuid.New(),
		JobID:     id,
		Status:    StatusRunning,
		StartedAt: startTime,
	}
	if r.running {
		s.mu.Unlock()
		exec.Status = StatusSkipped
		exec.Error = "previous execution still running"
		exec.EndedAt = &startTime
		s.logger.Warn("skipping overlapping execution", "job_id", id)
		s.record(ctx, exec, true)
		return exec
	}
	r.running = true
	job := r.job
	s.mu.Unlock()

	s.record(ctx, exec, true)

	s.logger.Info("executing job",
		"job_id", id,
		"execution_id", exec.ID)

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	output, err := job.Handler(runCtx)
	endTime := s.now()
	exec.EndedAt = &endTime
	exec.Output = output

	if err != nil {
		exec.Status = StatusFailed
		exec.Error = err.Error()
		s.logger.Error("job execution failed",
			"job_id", id,
			"error", err,
			"duration", endTime.Sub(startTime))
	} else {
		exec.Status = StatusCompleted
		s.logger.Info("job execution completed",
			"job_id", id,
			"output", output,
			"duration", endTime.Sub(startTime))
	}

	s.mu.Lock()
	r.running = false
	r.lastRun = &startTime
	s.mu.Unlock()

	s.record(ctx, exec, false)
	return exec
}

func (s *Scheduler) record(ctx context.Context, exec *JobExecution, create bool) {
	if s.store == nil {
		return
	}
	var err error
	if create {
		err = s.store.CreateExecution(ctx, exec)
	} else {
		err = s.store.UpdateExecution(ctx, exec)
	}
	if err != nil {
		s.logger.Error("failed to record execution", "job_id", exec.JobID, "error", err)
	}
}
