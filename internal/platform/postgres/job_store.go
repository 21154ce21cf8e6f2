package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/store"
)

// PostgresJobStore implements the queue.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// Verify PostgresJobStore implements queue.JobStore.
var _ queue.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// CreateJob persists a freshly enqueued job.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job *queue.Job) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, type, payload, priority, attempts, max_attempts,
			status, last_error, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.Payload,
		job.Priority.String(),
		job.Attempts,
		job.MaxAttempts,
		job.Status,
		job.LastError,
		job.EnqueuedAt,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", job.ID,
			"job_type", job.Type,
			"error", err)
		return MapError(err)
	}
	return nil
}

// UpdateJob persists a state transition.
func (s *PostgresJobStore) UpdateJob(ctx context.Context, job *queue.Job) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $2, attempts = $3, last_error = $4,
			started_at = $5, finished_at = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Attempts,
		job.LastError,
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to update job",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		// A runner without durable enqueue (store added later, or the
		// insert was lost) is not an error worth failing a transition for.
		log.Warn("no job row to update", "job_id", job.ID)
	}
	return nil
}

// RecoverJobs returns jobs a previous run left unfinished: waiting and
// retrying jobs as-is, plus active jobs interrupted by a crash.
func (s *PostgresJobStore) RecoverJobs(ctx context.Context) ([]*queue.Job, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, type, payload, priority, attempts, max_attempts,
			status, last_error, enqueued_at, started_at, finished_at
		FROM jobs
		WHERE status IN ($1, $2, $3)
		ORDER BY enqueued_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		queue.StatusWaiting, queue.StatusRetrying, queue.StatusActive)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*queue.Job
	for rows.Next() {
		var job queue.Job
		var priority, lastError sql.NullString
		var startedAt, finishedAt sql.NullTime

		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Payload,
			&priority,
			&job.Attempts,
			&job.MaxAttempts,
			&job.Status,
			&lastError,
			&job.EnqueuedAt,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		job.Priority = queue.ParsePriority(priority.String)
		job.LastError = lastError.String
		job.StartedAt = startedAt.Time
		job.FinishedAt = finishedAt.Time
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	if len(jobs) > 0 {
		log.Info("found unfinished jobs to recover", "count", len(jobs))
	}
	return jobs, nil
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
