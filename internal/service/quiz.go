package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/worker"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuizService drives a coding quiz from generation to graded result.
type QuizService interface {
	// Start resumes the draft for this configuration if one exists, and
	// otherwise charges one quiz and generates a new one. A leftover
	// finalized draft is dropped and a new quiz charged. When the quota
	// denies the quiz the error is LimitReached and the returned draft, which
	// is never saved, is in the denied state.
	Start(ctx context.Context, params StartQuizParams) (*domain.QuizDraft, error)

	// Answer records an answer and saves the draft.
	Answer(ctx context.Context, key domain.DraftKey, index int, answer string) (*domain.QuizDraft, error)

	// Seek moves the cursor and saves the draft.
	Seek(ctx context.Context, key domain.DraftKey, index int) (*domain.QuizDraft, error)

	// Discard drops the draft. The charged quiz is not refunded.
	Discard(ctx context.Context, key domain.DraftKey) error

	// Submit logs the quiz with a pending analysis, schedules grading,
	// finalizes the session and drops the draft. Safe to call again after a
	// failure; a finalized draft replays the logged record.
	Submit(ctx context.Context, key domain.DraftKey) (*domain.ActivityRecord, error)

	// CompleteGrading stores the analysis and drops any leftover draft.
	// A record that is already finalized counts as success.
	CompleteGrading(ctx context.Context, key domain.DraftKey, recordID string, analysis domain.Analysis) error
}

// StartQuizParams selects a quiz configuration.
type StartQuizParams struct {
	AccountID     string `validate:"required"`
	Topic         string `validate:"required,max=200"`
	Difficulty    string `validate:"required,oneof=easy medium hard"`
	QuestionCount int    `validate:"min=1,max=25"`
}

// =============================================================================
// Implementation
// =============================================================================

type quizService struct {
	quota    QuotaService
	activity ActivityService
	drafts   domain.DraftStore
	gen      ai.Generator
	jobs     JobEnqueuer
	retry    RetryConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quota QuotaService,
	activity ActivityService,
	drafts domain.DraftStore,
	gen ai.Generator,
	jobs JobEnqueuer,
	retry RetryConfig,
	logger *slog.Logger,
) QuizService {
	return &quizService{
		quota:    quota,
		activity: activity,
		drafts:   drafts,
		gen:      gen,
		jobs:     jobs,
		retry:    retry,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *quizService) load(ctx context.Context, op string, key domain.DraftKey) (*domain.QuizDraft, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var d *domain.QuizDraft
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		d, err = s.drafts.Load(ctx, key)
		return err
	})
	return d, err
}

func (s *quizService) save(ctx context.Context, op string, d *domain.QuizDraft) error {
	d.UpdatedAt = s.now().UTC()
	return withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.drafts.Save(ctx, d)
	})
}

func (s *quizService) discard(ctx context.Context, op string, key domain.DraftKey) error {
	return withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.drafts.Discard(ctx, key)
	})
}

// Start never charges for a configuration that already has a draft.
func (s *quizService) Start(ctx context.Context, params StartQuizParams) (*domain.QuizDraft, error) {
	const op = "quiz.start"

	if err := validateStruct(op, params); err != nil {
		return nil, err
	}
	key := domain.NewDraftKey(params.AccountID, params.Topic, params.Difficulty, params.QuestionCount)

	existing, err := s.load(ctx, op, key)
	switch {
	case err == nil && !existing.State.Terminal():
		s.logger.Debug("resuming quiz draft", "account_id", key.AccountID, "record_id", existing.RecordID, "state", existing.State)
		return existing, nil
	case err == nil:
		// Submitted earlier but the discard did not land.
		if err := s.discard(ctx, op, key); err != nil {
			return nil, err
		}
	case !domain.IsNotFound(err):
		return nil, err
	}

	draft := &domain.QuizDraft{
		Key:      key,
		RecordID: NewRecordID(),
		State:    domain.SessionNotStarted,
	}

	d, err := s.quota.TryConsume(ctx, key.AccountID, domain.FeatureCodingQuiz)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		if err := draft.TransitionTo(domain.SessionDenied); err != nil {
			return nil, err
		}
		s.logger.Info("quiz denied", "account_id", key.AccountID, "plan", d.Plan, "reason", d.Reason)
		return draft, d.Err(op)
	}

	if err := draft.TransitionTo(domain.SessionGenerating); err != nil {
		return nil, err
	}

	res, err := s.gen.Generate(ctx, ai.Request{
		Task:       ai.TaskQuizQuestions,
		AccountID:  key.AccountID,
		Topic:      params.Topic,
		Difficulty: key.Difficulty,
		Count:      key.QuestionCount,
	})
	if err != nil {
		s.logger.Warn("quiz generation failed after charge", "account_id", key.AccountID, "error", err)
		return nil, err
	}
	questions, err := ai.ParseQuestions(res.Content)
	if err != nil {
		return nil, err
	}
	if len(questions) > key.QuestionCount {
		questions = questions[:key.QuestionCount]
	}

	draft.Questions = questions
	draft.Answers = make([]string, len(questions))
	if err := draft.TransitionTo(domain.SessionActive); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, draft); err != nil {
		return nil, err
	}

	s.logger.Info("quiz started", "account_id", key.AccountID, "record_id", draft.RecordID, "questions", len(questions))
	return draft, nil
}

// Answer saves after every change so a restart loses at most the last edit.
func (s *quizService) Answer(ctx context.Context, key domain.DraftKey, index int, answer string) (*domain.QuizDraft, error) {
	const op = "quiz.answer"

	d, err := s.load(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if err := d.SetAnswer(index, answer); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *quizService) Seek(ctx context.Context, key domain.DraftKey, index int) (*domain.QuizDraft, error) {
	const op = "quiz.seek"

	d, err := s.load(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if err := d.Seek(index); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *quizService) Discard(ctx context.Context, key domain.DraftKey) error {
	const op = "quiz.discard"

	if err := key.Validate(); err != nil {
		return err
	}
	return s.discard(ctx, op, key)
}

// Submit persists the submitting state first, so a retry after a crash
// resumes at the ledger write with the same record id.
func (s *quizService) Submit(ctx context.Context, key domain.DraftKey) (*domain.ActivityRecord, error) {
	const op = "quiz.submit"

	d, err := s.load(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if d.State == domain.SessionFinalized {
		rec, err := s.activity.Get(ctx, key.AccountID, d.RecordID)
		if err != nil {
			return nil, err
		}
		if err := s.discard(ctx, op, key); err != nil {
			s.logger.Warn("failed to discard submitted draft", "account_id", key.AccountID, "record_id", d.RecordID, "error", err)
		}
		return rec, nil
	}
	if err := d.TransitionTo(domain.SessionSubmitting); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, d); err != nil {
		return nil, err
	}

	rec := &domain.ActivityRecord{
		ID:        d.RecordID,
		AccountID: key.AccountID,
		Kind:      domain.RecordQuizResult,
		Timestamp: s.now().UTC(),
		Quiz: &domain.QuizResult{
			Topic:         key.Topic,
			Difficulty:    key.Difficulty,
			QuestionCount: key.QuestionCount,
			Questions:     d.Questions,
			Answers:       d.Answers,
		},
		Analysis: domain.Analysis{Status: domain.AnalysisPending},
	}
	if _, err := s.activity.Append(ctx, rec); err != nil {
		return nil, domain.ChargedNotSaved(err, op, domain.FeatureCodingQuiz)
	}

	payload := worker.GradeQuizPayload{AccountID: key.AccountID, RecordID: d.RecordID, Draft: key}
	if err := s.jobs.Enqueue(ctx, worker.JobTypeGradeQuiz, payload); err != nil {
		s.logger.Error("failed to enqueue quiz grading", "account_id", key.AccountID, "record_id", d.RecordID, "error", err)
		return nil, domain.Unavailable(err, op, "failed to schedule grading")
	}

	// The ledger now holds the quiz. A finalized draft left behind by a
	// failed discard replays the record and never re-enqueues.
	if err := d.TransitionTo(domain.SessionFinalized); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, d); err != nil {
		s.logger.Warn("failed to save finalized draft", "account_id", key.AccountID, "record_id", d.RecordID, "error", err)
	}
	if err := s.discard(ctx, op, key); err != nil {
		s.logger.Warn("failed to discard submitted draft", "account_id", key.AccountID, "record_id", d.RecordID, "error", err)
	}

	s.logger.Info("quiz submitted", "account_id", key.AccountID, "record_id", d.RecordID)
	return rec, nil
}

func (s *quizService) CompleteGrading(ctx context.Context, key domain.DraftKey, recordID string, analysis domain.Analysis) error {
	const op = "quiz.complete_grading"

	err := s.activity.Finalize(ctx, key.AccountID, recordID, analysis)
	if err != nil && !domain.IsAlreadyFinalized(err) {
		return err
	}
	if domain.IsAlreadyFinalized(err) {
		s.logger.Debug("quiz already graded", "account_id", key.AccountID, "record_id", recordID)
	}

	return s.discard(ctx, op, key)
}
