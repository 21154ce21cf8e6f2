package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Submitter abstracts how jobs enter the pipeline so callers don't care
// whether execution is queued or inline.
type Submitter interface {
	Enqueue(ctx context.Context, jobType string, payload []byte, priority Priority) (uuid.UUID, error)
}

// QueuedSubmitter feeds the Runner. This is the normal production path.
type QueuedSubmitter struct {
	runner *Runner
}

// NewQueuedSubmitter wraps a runner as a Submitter.
func NewQueuedSubmitter(runner *Runner) *QueuedSubmitter {
	return &QueuedSubmitter{runner: runner}
}

// Enqueue creates a job and hands it to the runner without blocking.
func (s *QueuedSubmitter) Enqueue(ctx context.Context, jobType string, payload []byte, priority Priority) (uuid.UUID, error) {
	job, err := NewJob(jobType, payload, priority, s.runner.cfg.MaxAttempts)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.runner.Enqueue(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// SyncSubmitter executes handlers inline in the caller's goroutine. It is
// selected explicitly by configuration or by a failed startup database
// connection, never by runtime connectivity probing. There are no retries
// in this mode; the caller sees the handler's error directly.
type SyncSubmitter struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	errHook  func(job *Job, err error)
}

// NewSyncSubmitter creates the inline fallback submitter.
func NewSyncSubmitter(registry *Registry, timeout time.Duration, log *slog.Logger) *SyncSubmitter {
	return &SyncSubmitter{registry: registry, timeout: timeout, logger: log, metrics: &Metrics{}}
}

// SetErrorHook installs a callback invoked on every handler failure, the
// same contract as the runner's hook.
func (s *SyncSubmitter) SetErrorHook(hook func(job *Job, err error)) {
	s.errHook = hook
}

// Stats returns the inline execution counters so the health monitor reads
// the same shape it would from the runner.
func (s *SyncSubmitter) Stats() Snapshot {
	return s.metrics.Snapshot()
}

// WorkerCount reports the inline concurrency, which is the caller itself.
func (s *SyncSubmitter) WorkerCount() int { return 1 }

// Enqueue runs the handler before returning.
func (s *SyncSubmitter) Enqueue(ctx context.Context, jobType string, payload []byte, priority Priority) (uuid.UUID, error) {
	job, err := NewJob(jobType, payload, priority, 1)
	if err != nil {
		return uuid.Nil, err
	}

	handler, err := s.registry.Resolve(jobType)
	if err != nil {
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	job.Status = StatusActive
	job.Attempts = 1
	job.StartedAt = time.Now().UTC()
	s.metrics.jobQueued()
	s.metrics.jobStarted()

	if err := handler(runCtx, job); err != nil {
		job.Status = StatusDead
		s.metrics.jobDead()
		if s.errHook != nil {
			s.errHook(job, err)
		}
		s.logger.Error("synchronous job failed",
			"job_id", job.ID, "job_type", jobType, "error", err)
		return job.ID, err
	}

	job.Status = StatusCompleted
	job.FinishedAt = time.Now().UTC()
	s.metrics.jobCompleted(job.FinishedAt.Sub(job.StartedAt))
	return job.ID, nil
}
