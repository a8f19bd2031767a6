package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/service"
	"github.com/ZaidMomin2003/talxify/internal/worker"
)

// GradeQuizHandler grades a submitted quiz and finalizes its ledger record.
type GradeQuizHandler struct {
	activity service.ActivityService
	quiz     service.QuizService
	gen      ai.Generator
	logger   *slog.Logger
}

// NewGradeQuizHandler creates a new handler for quiz grading jobs.
func NewGradeQuizHandler(
	activity service.ActivityService,
	quiz service.QuizService,
	gen ai.Generator,
	logger *slog.Logger,
) *GradeQuizHandler {
	return &GradeQuizHandler{
		activity: activity,
		quiz:     quiz,
		gen:      gen,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *GradeQuizHandler) Type() string {
	return worker.JobTypeGradeQuiz
}

// Handle grades the quiz. A rerun after a completed grading only repeats
// the draft cleanup.
func (h *GradeQuizHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.GradeQuizPayload
	if err := worker.DecodePayload(payload, &p); err != nil {
		return err
	}
	if p.AccountID == "" || p.RecordID == "" {
		return worker.NewPermanentError(fmt.Errorf("payload missing account or record id"))
	}

	logger := h.logger.With("account_id", p.AccountID, "record_id", p.RecordID)

	rec, err := h.activity.Get(ctx, p.AccountID, p.RecordID)
	if err != nil {
		return classify(err)
	}
	if rec.Kind != domain.RecordQuizResult || rec.Quiz == nil {
		return worker.NewPermanentError(fmt.Errorf("record %s is not a quiz result", rec.ID))
	}
	if p.Draft.AccountID == "" {
		p.Draft = domain.NewDraftKey(p.AccountID, rec.Quiz.Topic, rec.Quiz.Difficulty, rec.Quiz.QuestionCount)
	}
	if !rec.Pending() {
		logger.Info("Quiz already graded")
		return classify(h.quiz.CompleteGrading(ctx, p.Draft, p.RecordID, rec.Analysis))
	}

	res, err := h.gen.Generate(ctx, ai.Request{
		Task:       ai.TaskQuizGrading,
		AccountID:  p.AccountID,
		Topic:      rec.Quiz.Topic,
		Difficulty: rec.Quiz.Difficulty,
		Questions:  rec.Quiz.Questions,
		Answers:    rec.Quiz.Answers,
	})
	if err != nil {
		return classify(err)
	}

	analysis, err := ai.ParseAnalysis(res.Content)
	if err != nil {
		return classify(err)
	}

	if err := h.quiz.CompleteGrading(ctx, p.Draft, p.RecordID, analysis); err != nil {
		return classify(err)
	}

	logger.Info("Quiz graded", "score", analysis.Score)
	return nil
}
