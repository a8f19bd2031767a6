package worker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/repository"
	"github.com/google/uuid"
)

// Queue is the job table as the worker sees it.
type Queue interface {
	// Claim marks the next due job as running and returns it.
	// Returns sql.ErrNoRows when nothing is due.
	Claim(ctx context.Context) (repository.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail records a failed attempt. The job is rescheduled with backoff
	// unless permanent is set or its attempts are spent.
	Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
	Enqueue(ctx context.Context, params repository.EnqueueJobParams) (repository.Job, error)
}

// PostgresQueue is the Queue backed by the jobs table.
type PostgresQueue struct {
	db      *sql.DB
	queries *repository.Queries
}

// NewPostgresQueue creates a PostgresQueue.
func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db, queries: repository.New(db)}
}

var _ Queue = (*PostgresQueue)(nil)

// Claim dequeues with SKIP LOCKED inside a short transaction, so concurrent
// workers never claim the same job. The handler runs after commit.
func (q *PostgresQueue) Claim(ctx context.Context) (repository.Job, error) {
	var job repository.Job
	err := repository.WithTx(ctx, q.db, nil, func(qtx *repository.Queries) error {
		var err error
		job, err = qtx.DequeueJob(ctx)
		if err != nil {
			return err
		}
		if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
			return fmt.Errorf("mark job started: %w", err)
		}
		return nil
	})
	return job, err
}

func (q *PostgresQueue) Complete(ctx context.Context, id uuid.UUID) error {
	if err := q.queries.UpdateJobCompleted(ctx, id); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error {
	err := q.queries.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		ID:           id,
		ErrorMessage: sql.NullString{String: message, Valid: true},
		Permanent:    permanent,
	})
	if err != nil {
		return fmt.Errorf("update job failed: %w", err)
	}
	return nil
}

func (q *PostgresQueue) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	n, err := q.queries.RecoverStaleJobs(ctx, threshold.Seconds())
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return n, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, params repository.EnqueueJobParams) (repository.Job, error) {
	job, err := q.queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}
