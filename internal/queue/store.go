package queue

import (
	"context"
)

// JobStore persists job state transitions so the pipeline survives a
// restart. Persistence is advisory: a failing store degrades the queue to
// log-only operation, it never stops dispatch.
type JobStore interface {
	// CreateJob persists a freshly enqueued job.
	CreateJob(ctx context.Context, job *Job) error

	// UpdateJob persists a state transition.
	UpdateJob(ctx context.Context, job *Job) error

	// RecoverJobs returns jobs from a previous run that still need work:
	// waiting and retrying jobs as-is, plus active jobs interrupted by a
	// crash, all reset to waiting.
	RecoverJobs(ctx context.Context) ([]*Job, error)
}
