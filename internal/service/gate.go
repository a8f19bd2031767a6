package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/ZaidMomin2003/talxify/internal/worker"
)

// JobEnqueuer schedules background work.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

// Action is the work a gated feature performs once a unit is charged.
type Action func(ctx context.Context) error

// ledgerError marks an action failure that happened while writing the
// activity ledger, as opposed to while generating.
type ledgerError struct {
	err error
}

func (e *ledgerError) Error() string { return e.err.Error() }
func (e *ledgerError) Unwrap() error { return e.err }

// InterviewSession is returned when a mock interview starts.
type InterviewSession struct {
	RecordID string
	Role     string
	Level    string
	Briefing string
}

// Gate charges quota before running a feature and records the outcome.
type Gate struct {
	quota    QuotaService
	activity ActivityService
	gen      ai.Generator
	jobs     JobEnqueuer
	now      func() time.Time
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(quota QuotaService, activity ActivityService, gen ai.Generator, jobs JobEnqueuer, logger *slog.Logger) *Gate {
	return &Gate{
		quota:    quota,
		activity: activity,
		gen:      gen,
		jobs:     jobs,
		now:      time.Now,
		logger:   logger,
	}
}

// Run consumes one unit of feature and then runs action. The unit stays
// charged whatever action returns. No lock is held while action runs.
func (g *Gate) Run(ctx context.Context, accountID string, feature domain.Feature, action Action) error {
	const op = "gate.run"

	d, err := g.quota.TryConsume(ctx, accountID, feature)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return d.Err(op)
	}

	if err := action(ctx); err != nil {
		var le *ledgerError
		if errors.As(err, &le) {
			metrics.ChargedWithoutRecord(string(feature))
			g.logger.Error("charged but not saved",
				"account_id", accountID,
				"feature", feature,
				"error", le.err,
			)
			return domain.ChargedNotSaved(le.err, op, feature)
		}
		g.logger.Warn("gated action failed", "account_id", accountID, "feature", feature, "error", err)
		return err
	}
	return nil
}

// record appends rec and tags any failure as a ledger failure.
func (g *Gate) record(ctx context.Context, rec *domain.ActivityRecord) error {
	if _, err := g.activity.Append(ctx, rec); err != nil {
		return &ledgerError{err: err}
	}
	return nil
}

// =============================================================================
// Feature actions
// =============================================================================

type notesInput struct {
	AccountID string `validate:"required"`
	Topic     string `validate:"required,max=200"`
	Level     string `validate:"omitempty,oneof=beginner intermediate advanced"`
}

// GenerateNotes produces study notes and logs them to the activity ledger.
func (g *Gate) GenerateNotes(ctx context.Context, accountID, topic, level string) (*domain.ActivityRecord, error) {
	const op = "gate.generate_notes"

	in := notesInput{AccountID: accountID, Topic: strings.TrimSpace(topic), Level: level}
	if err := validateStruct(op, in); err != nil {
		return nil, err
	}

	var rec *domain.ActivityRecord
	err := g.Run(ctx, accountID, domain.FeatureNotes, func(ctx context.Context) error {
		res, err := g.gen.Generate(ctx, ai.Request{
			Task:       ai.TaskStudyNotes,
			AccountID:  accountID,
			Topic:      in.Topic,
			Difficulty: level,
		})
		if err != nil {
			return err
		}
		rec = &domain.ActivityRecord{
			ID:        NewRecordID(),
			AccountID: accountID,
			Kind:      domain.RecordNoteGeneration,
			Timestamp: g.now().UTC(),
			Note:      &domain.NoteGeneration{Topic: in.Topic, Content: res.Content},
			Analysis:  domain.Analysis{Status: domain.AnalysisNone},
		}
		return g.record(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type questionsInput struct {
	AccountID  string `validate:"required"`
	Topic      string `validate:"required,max=200"`
	Difficulty string `validate:"required,oneof=easy medium hard"`
	Count      int    `validate:"min=1,max=25"`
}

// GenerateQuestions produces an interview question bank.
func (g *Gate) GenerateQuestions(ctx context.Context, accountID, topic, difficulty string, count int) ([]domain.QuizQuestion, error) {
	const op = "gate.generate_questions"

	in := questionsInput{AccountID: accountID, Topic: strings.TrimSpace(topic), Difficulty: difficulty, Count: count}
	if err := validateStruct(op, in); err != nil {
		return nil, err
	}

	var questions []domain.QuizQuestion
	err := g.Run(ctx, accountID, domain.FeatureQuestionGenerator, func(ctx context.Context) error {
		res, err := g.gen.Generate(ctx, ai.Request{
			Task:       ai.TaskQuestionBank,
			AccountID:  accountID,
			Topic:      in.Topic,
			Difficulty: difficulty,
			Count:      count,
		})
		if err != nil {
			return err
		}
		questions, err = ai.ParseQuestions(res.Content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

type resumeInput struct {
	AccountID string `validate:"required"`
	Text      string `validate:"required,max=20000"`
}

// EnhanceResume rewrites résumé text.
func (g *Gate) EnhanceResume(ctx context.Context, accountID, text string) (string, error) {
	const op = "gate.enhance_resume"

	in := resumeInput{AccountID: accountID, Text: strings.TrimSpace(text)}
	if err := validateStruct(op, in); err != nil {
		return "", err
	}

	var enhanced string
	err := g.Run(ctx, accountID, domain.FeatureAIEnhancement, func(ctx context.Context) error {
		res, err := g.gen.Generate(ctx, ai.Request{
			Task:      ai.TaskResumeEnhancement,
			AccountID: accountID,
			Text:      in.Text,
		})
		if err != nil {
			return err
		}
		enhanced = res.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return enhanced, nil
}

// ExportResume charges one export and runs export.
func (g *Gate) ExportResume(ctx context.Context, accountID string, export Action) error {
	const op = "gate.export_resume"

	if accountID == "" {
		return domain.Invalid(op, "account id is required")
	}
	return g.Run(ctx, accountID, domain.FeatureResumeExport, export)
}

// ResumeRenderer writes a résumé in one output format.
type ResumeRenderer interface {
	Render(ctx context.Context, doc *domain.Resume, w io.Writer) (int64, error)
}

// RenderResume validates doc, then charges one export and renders doc into
// w. A render failure after the charge is not refunded.
func (g *Gate) RenderResume(ctx context.Context, accountID string, doc *domain.Resume, renderer ResumeRenderer, w io.Writer) error {
	const op = "gate.render_resume"

	if accountID == "" {
		return domain.Invalid(op, "account id is required")
	}
	if doc == nil {
		return domain.Invalid(op, "resume is required")
	}
	if err := validateStruct(op, doc); err != nil {
		return err
	}

	return g.ExportResume(ctx, accountID, func(ctx context.Context) error {
		n, err := renderer.Render(ctx, doc, w)
		if err != nil {
			return err
		}
		g.logger.Debug("resume rendered", "account_id", accountID, "bytes", n)
		return nil
	})
}

type interviewInput struct {
	AccountID string `validate:"required"`
	Role      string `validate:"required,max=200"`
	Level     string `validate:"omitempty,oneof=junior mid senior staff"`
}

// StartInterview charges one interview and returns the opening briefing.
// The record id is reserved inside the charged action; RecordInterview only
// accepts reserved ids.
func (g *Gate) StartInterview(ctx context.Context, accountID, role, level string) (*InterviewSession, error) {
	const op = "gate.start_interview"

	in := interviewInput{AccountID: accountID, Role: strings.TrimSpace(role), Level: level}
	if err := validateStruct(op, in); err != nil {
		return nil, err
	}

	var session *InterviewSession
	err := g.Run(ctx, accountID, domain.FeatureInterview, func(ctx context.Context) error {
		res, err := g.gen.Generate(ctx, ai.Request{
			Task:       ai.TaskInterviewPrompt,
			AccountID:  accountID,
			Topic:      in.Role,
			Difficulty: level,
		})
		if err != nil {
			return err
		}

		reservation := &domain.InterviewReservation{
			AccountID:  accountID,
			RecordID:   NewRecordID(),
			Role:       in.Role,
			Level:      level,
			ReservedAt: g.now().UTC(),
		}
		if err := g.activity.Reserve(ctx, reservation); err != nil {
			return &ledgerError{err: err}
		}

		session = &InterviewSession{
			RecordID: reservation.RecordID,
			Role:     in.Role,
			Level:    level,
			Briefing: res.Content,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RecordInterview logs a finished interview with a pending analysis and
// schedules the analysis. Only a record id reserved by StartInterview is
// accepted, and each reservation yields one record and one analysis job.
// Calling it again after success returns the stored record.
func (g *Gate) RecordInterview(ctx context.Context, accountID, recordID string, result domain.InterviewResult) (*domain.ActivityRecord, error) {
	const op = "gate.record_interview"

	if accountID == "" || recordID == "" {
		return nil, domain.Invalid(op, "account id and record id are required")
	}
	if len(result.Transcript) == 0 {
		return nil, domain.NewValidationError(op, "transcript", "is required")
	}

	token := NewRecordID()
	reservation, claimed, err := g.activity.Claim(ctx, accountID, recordID, token)
	if err != nil {
		if domain.IsNotFound(err) {
			g.logger.Warn("interview recorded without reservation", "account_id", accountID, "record_id", recordID)
			return nil, domain.NotFound(op, "interview", recordID)
		}
		return nil, err
	}
	if !claimed {
		rec, err := g.activity.Get(ctx, accountID, recordID)
		if domain.IsNotFound(err) {
			return nil, domain.Errorf(domain.ECONFLICT, op, "interview %s is already being recorded", recordID)
		}
		return rec, err
	}

	// The reservation is authoritative for what was charged.
	result.Role = reservation.Role
	result.Level = reservation.Level

	rec := &domain.ActivityRecord{
		ID:        recordID,
		AccountID: accountID,
		Kind:      domain.RecordInterviewResult,
		Timestamp: g.now().UTC(),
		Interview: &result,
		Analysis:  domain.Analysis{Status: domain.AnalysisPending},
	}
	if _, err := g.activity.Append(ctx, rec); err != nil {
		g.release(ctx, accountID, recordID, token)
		if domain.ErrorCode(err) == domain.EINVALID {
			return nil, err
		}
		metrics.ChargedWithoutRecord(string(domain.FeatureInterview))
		return nil, domain.ChargedNotSaved(err, op, domain.FeatureInterview)
	}

	payload := worker.AnalyzeInterviewPayload{AccountID: accountID, RecordID: recordID}
	if err := g.jobs.Enqueue(ctx, worker.JobTypeAnalyzeInterview, payload); err != nil {
		g.logger.Error("failed to enqueue interview analysis", "account_id", accountID, "record_id", recordID, "error", err)
		g.release(ctx, accountID, recordID, token)
		return nil, domain.Unavailable(err, op, "failed to schedule interview analysis")
	}
	return rec, nil
}

// release hands a claim back so the client can retry the recording.
func (g *Gate) release(ctx context.Context, accountID, recordID, token string) {
	if err := g.activity.Release(ctx, accountID, recordID, token); err != nil {
		g.logger.Error("failed to release interview reservation", "account_id", accountID, "record_id", recordID, "error", err)
	}
}
