package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
)

// Config holds runner tuning knobs.
type Config struct {
	// WorkerCount bounds concurrent handler executions.
	WorkerCount int

	// QueueSize is the waiting buffer capacity per priority.
	QueueSize int

	// JobTimeout bounds each handler execution. A timed out handler is a
	// failure and follows the retry path.
	JobTimeout time.Duration

	// MaxAttempts is the total execution budget before the dead letter
	// state, including the first attempt.
	MaxAttempts int

	// BackoffBase seeds the exponential retry delay.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration

	// StopGrace bounds how long Stop waits for in-flight handlers.
	StopGrace time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		QueueSize:   100,
		JobTimeout:  2 * time.Minute,
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  5 * time.Minute,
		StopGrace:   30 * time.Second,
	}
}

// Runner owns the priority queue and the worker pool. A single dispatcher
// goroutine pulls jobs in priority order and hands them to the pool, which
// caps concurrency at WorkerCount.
type Runner struct {
	cfg      Config
	registry *Registry
	store    JobStore
	logger   *slog.Logger
	metrics  *Metrics

	queues [PriorityHigh + 1]chan *Job
	pool   *ants.Pool

	// slots caps in-flight handlers. The dispatcher acquires a slot before
	// pool submission so a shutdown can interrupt it while every worker is
	// busy; holding a slot guarantees the pool has capacity.
	slots chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool

	errHook func(job *Job, err error)
}

// NewRunner creates a stopped Runner. The store may be nil, in which case
// jobs are not durable across restarts.
func NewRunner(cfg Config, registry *Registry, store JobStore, log *slog.Logger) (*Runner, error) {
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("%w: worker count must be at least 1", domain.ErrConfiguration)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("%w: queue size must be at least 1", domain.ErrConfiguration)
	}

	pool, err := ants.NewPool(cfg.WorkerCount,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			log.Error("job handler panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cfg:      cfg,
		registry: registry,
		store:    store,
		logger:   log,
		metrics:  &Metrics{},
		pool:     pool,
		slots:    make(chan struct{}, cfg.WorkerCount),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range r.queues {
		r.queues[i] = make(chan *Job, cfg.QueueSize)
	}
	return r, nil
}

// SetErrorHook installs a callback invoked on every handler failure. Used
// to feed the health monitor's recent error buffer.
func (r *Runner) SetErrorHook(hook func(job *Job, err error)) {
	r.errHook = hook
}

// Stats returns a point-in-time counter snapshot.
func (r *Runner) Stats() Snapshot {
	return r.metrics.Snapshot()
}

// WorkerCount reports the pool's concurrency cap.
func (r *Runner) WorkerCount() int {
	return r.cfg.WorkerCount
}

// Start recovers persisted jobs and begins dispatching.
func (r *Runner) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already started")
	}

	if err := r.recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	r.wg.Add(1)
	go r.dispatch()
	return nil
}

// Stop rejects new work immediately, waits up to StopGrace for in-flight
// handlers, then releases the pool. It never blocks indefinitely.
func (r *Runner) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}

	r.cancel()

	// The cancel above unblocks the dispatcher wherever it waits, including
	// mid-acquisition of a worker slot. The bound is insurance only.
	dispatcherDone := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(dispatcherDone)
	}()
	select {
	case <-dispatcherDone:
	case <-time.After(r.cfg.StopGrace):
		r.logger.Warn("dispatcher did not stop within grace period")
	}

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.cfg.StopGrace):
		r.logger.Warn("shutdown grace period elapsed with jobs still in flight",
			"active", r.metrics.Snapshot().Active)
	}

	if err := r.pool.ReleaseTimeout(r.cfg.StopGrace); err != nil {
		r.logger.Warn("worker pool did not drain before release timeout", "error", err)
	}
}

// Enqueue accepts a job into the waiting buffer without blocking. A full
// buffer returns ErrQueueFull so callers can shed load explicitly.
func (r *Runner) Enqueue(ctx context.Context, job *Job) error {
	if !r.started.Load() || r.stopped.Load() {
		return ErrNotRunning
	}
	if _, err := r.registry.Resolve(job.Type); err != nil {
		return err
	}

	job.Status = StatusWaiting
	r.persistCreate(ctx, job)
	r.metrics.jobQueued()

	select {
	case r.queues[job.Priority] <- job:
		return nil
	default:
		r.metrics.jobDropped()
		return fmt.Errorf("%w: priority %s", ErrQueueFull, job.Priority)
	}
}

// recover requeues jobs left unfinished by a previous run.
func (r *Runner) recover() error {
	if r.store == nil {
		return nil
	}

	jobs, err := r.store.RecoverJobs(r.ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	r.logger.Info("recovering unfinished jobs", "count", len(jobs))
	for _, job := range jobs {
		job.Status = StatusWaiting
		r.metrics.jobQueued()
		select {
		case r.queues[job.Priority] <- job:
		default:
			// Left as waiting in the store for the next start.
			r.metrics.jobDropped()
			r.logger.Warn("queue full during recovery, job deferred",
				"job_id", job.ID, "job_type", job.Type)
		}
	}
	return nil
}

// dispatch pulls jobs in priority order and hands them to the pool.
// Submission waits for a free worker slot, so the waiting buffers act as
// the only backlog.
func (r *Runner) dispatch() {
	defer r.wg.Done()

	for {
		// Drain higher priorities before considering lower ones.
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.queues[PriorityHigh]:
			r.submit(job)
			continue
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case job := <-r.queues[PriorityHigh]:
			r.submit(job)
			continue
		case job := <-r.queues[PriorityDefault]:
			r.submit(job)
			continue
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case job := <-r.queues[PriorityHigh]:
			r.submit(job)
		case job := <-r.queues[PriorityDefault]:
			r.submit(job)
		case job := <-r.queues[PriorityLow]:
			r.submit(job)
		}
	}
}

// submit hands one job to the pool once a worker slot frees up.
func (r *Runner) submit(job *Job) {
	select {
	case r.slots <- struct{}{}:
	case <-r.ctx.Done():
		// Shutdown while all workers were busy. The job is still waiting
		// in the store, so the next start recovers it.
		r.metrics.jobDropped()
		return
	}

	r.inflight.Add(1)
	err := r.pool.Submit(func() {
		defer func() {
			<-r.slots
			r.inflight.Done()
		}()
		r.execute(job)
	})
	if err != nil {
		<-r.slots
		r.inflight.Done()
		r.metrics.jobDropped()
		r.logger.Error("failed to submit job to worker pool",
			"job_id", job.ID, "job_type", job.Type, "error", err)
	}
}

// execute runs one attempt of a job and routes the outcome.
func (r *Runner) execute(job *Job) {
	log := r.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts+1)

	job.Status = StatusActive
	job.Attempts++
	job.StartedAt = time.Now().UTC()
	r.metrics.jobStarted()
	r.persistUpdate(job)

	handler, err := r.registry.Resolve(job.Type)
	if err != nil {
		// Enqueue validates the type, so this only happens for jobs
		// recovered after a deploy dropped their handler.
		r.fail(job, err, log)
		return
	}

	ctx, cancel := context.WithTimeout(logger.WithLogger(context.Background(), log), r.cfg.JobTimeout)
	err = handler(ctx, job)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", domain.ErrJobTimeout, r.cfg.JobTimeout, err)
		}
		r.fail(job, err, log)
		return
	}

	job.Status = StatusCompleted
	job.FinishedAt = time.Now().UTC()
	job.LastError = ""
	r.metrics.jobCompleted(job.FinishedAt.Sub(job.StartedAt))
	r.persistUpdate(job)
	log.Info("job completed", "duration", job.FinishedAt.Sub(job.StartedAt))
}

// fail routes a failed attempt to retry or the dead letter state.
func (r *Runner) fail(job *Job, cause error, log *slog.Logger) {
	job.LastError = cause.Error()
	if r.errHook != nil {
		r.errHook(job, cause)
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusDead
		job.FinishedAt = time.Now().UTC()
		r.metrics.jobDead()
		r.persistUpdate(job)
		log.Error("job exhausted attempts, moved to dead letter",
			"attempts", job.Attempts, "error", cause)
		return
	}

	delay := r.backoff(job.Attempts)
	job.Status = StatusRetrying
	r.metrics.jobRetried()
	r.persistUpdate(job)
	log.Warn("job failed, retrying", "delay", delay, "error", cause)

	r.inflight.Add(1)
	time.AfterFunc(delay, func() {
		defer r.inflight.Done()
		r.requeue(job)
	})
}

// requeue moves a retrying job back to waiting once its backoff elapses.
func (r *Runner) requeue(job *Job) {
	job.Status = StatusWaiting
	r.metrics.jobQueued()
	r.persistUpdate(job)

	select {
	case r.queues[job.Priority] <- job:
	case <-r.ctx.Done():
		// Stays waiting in the store so the next start recovers it.
		r.metrics.jobDropped()
	}
}

// backoff returns base*2^attempts capped at the configured maximum.
func (r *Runner) backoff(attempts int) time.Duration {
	d := r.cfg.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= r.cfg.BackoffMax {
			return r.cfg.BackoffMax
		}
	}
	return d
}

// persistCreate writes the initial job row, degrading to log-only when the
// store is down.
func (r *Runner) persistCreate(ctx context.Context, job *Job) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		r.logger.Warn("job persistence failed, continuing without durability",
			"job_id", job.ID, "job_type", job.Type, "error", err)
	}
}

// persistUpdate writes a state transition, degrading to log-only when the
// store is down.
func (r *Runner) persistUpdate(job *Job) {
	if r.store == nil {
		return
	}
	// Background context: transitions still persist while shutting down.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.UpdateJob(ctx, job); err != nil {
		r.logger.Warn("job state persistence failed",
			"job_id", job.ID, "job_type", job.Type, "status", job.Status, "error", err)
	}
}
