package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/ZaidMomin2003/talxify/internal/repository"
)

// Worker manages background job processing with concurrent workers.
type Worker struct {
	queue    Queue
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(queue Queue, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		queue:    queue,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("Registered job handler", "job_type", jobType)
}

// Start recovers jobs left running by a crashed process and then launches
// the configured number of pollers.
func (w *Worker) Start(ctx context.Context) {
	count, err := w.queue.RecoverStale(ctx, w.config.StaleJobThreshold)
	if err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
	} else if count > 0 {
		w.logger.Warn("Recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("Worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits up to ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
	}
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything that is due before waiting again.
			for {
				err := w.processNextJob(ctx, logger)
				if errors.Is(err, sql.ErrNoRows) {
					break
				}
				if err != nil {
					logger.Error("Failed to process job", "error", err)
					break
				}
				select {
				case <-w.stopCh:
					return
				default:
				}
			}
		}
	}
}

// processNextJob claims and executes a single job.
// Returns sql.ErrNoRows if no jobs are available.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := w.queue.Claim(ctx)
	if err != nil {
		return err
	}

	attempt := job.Attempts + 1
	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", attempt)
	logger.Info("Processing job")

	start := time.Now()
	if err := w.executeJob(ctx, job); err != nil {
		permanent := IsPermanent(err) || attempt >= job.MaxAttempts
		if permanent {
			metrics.JobFailed(job.JobType)
			logger.Error("Job failed, will not retry", "error", err)
		} else {
			metrics.JobRetried(job.JobType)
			logger.Warn("Job failed, will retry", "error", err)
		}
		if ferr := w.queue.Fail(ctx, job.ID, err.Error(), IsPermanent(err)); ferr != nil {
			logger.Error("Failed to mark job as failed", "error", ferr)
		}
		return nil
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	logger.Info("Job completed", "duration", time.Since(start))
	if err := w.queue.Complete(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// executeJob runs the job's handler under JobTimeout.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}
