package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeGradeQuiz        = "grade_quiz"
	JobTypeAnalyzeInterview = "analyze_interview"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// GradeQuizPayload is the payload for quiz grading jobs.
type GradeQuizPayload struct {
	AccountID string          `json:"account_id"`
	RecordID  string          `json:"record_id"`
	Draft     domain.DraftKey `json:"draft"`
}

// AnalyzeInterviewPayload is the payload for interview analysis jobs.
type AnalyzeInterviewPayload struct {
	AccountID string `json:"account_id"`
	RecordID  string `json:"record_id"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a job of jobType.
func EnqueueJob(
	ctx context.Context,
	queue Queue,
	jobType string,
	payload any,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 5,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	return queue.Enqueue(ctx, params)
}

// Enqueuer binds a Queue and default options for callers that only need
// fire-and-forget scheduling.
type Enqueuer struct {
	queue Queue
	opts  []EnqueueOption
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(queue Queue, opts ...EnqueueOption) *Enqueuer {
	return &Enqueuer{queue: queue, opts: opts}
}

// Enqueue schedules a job with the default options.
func (e *Enqueuer) Enqueue(ctx context.Context, jobType string, payload any) error {
	_, err := EnqueueJob(ctx, e.queue, jobType, payload, e.opts...)
	return err
}
