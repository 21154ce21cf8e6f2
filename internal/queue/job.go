// Package queue implements the background job pipeline: a priority queue,
// a bounded worker pool, retry with exponential backoff, and a dead letter
// terminal state. Delivery is at-least-once; handlers must be idempotent.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusRetrying  Status = "retrying"
	StatusDead      Status = "dead"
)

// Priority orders jobs for dispatch. Workers prefer higher priorities but
// the preference is not strict under contention.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityDefault
	PriorityHigh
)

// String returns the priority name for logs and persistence.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "default"
	}
}

// ParsePriority maps a persisted priority name back to its value. Unknown
// names fall back to the default priority.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityDefault
	}
}

// Queue errors.
var (
	// ErrQueueFull signals that the waiting buffer for the job's priority
	// is saturated and the job was not accepted.
	ErrQueueFull = errors.New("job queue is full")

	// ErrUnknownJobType signals a job whose type has no registered handler.
	ErrUnknownJobType = errors.New("no handler registered for job type")

	// ErrNotRunning signals submission to a stopped runner.
	ErrNotRunning = errors.New("job runner is not running")
)

// Job is a unit of background work.
type Job struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	Priority    Priority
	Attempts    int
	MaxAttempts int
	Status      Status
	LastError   string
	EnqueuedAt  time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewJob creates a waiting job with a fresh identity.
func NewJob(jobType string, payload []byte, priority Priority, maxAttempts int) (*Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}

	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      StatusWaiting,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// Handler executes a job. A non-nil error sends the job down the retry
// path; exhausting MaxAttempts moves it to the dead letter state.
type Handler func(ctx context.Context, job *Job) error

// Registry maps job types to their handlers. Registration happens during
// startup wiring, before any dispatch, so no locking is needed.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Resolve returns the handler for a job type.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	return h, nil
}
