package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/service"
	"github.com/ZaidMomin2003/talxify/internal/worker"
)

// AnalyzeInterviewHandler reviews a recorded interview transcript.
type AnalyzeInterviewHandler struct {
	activity service.ActivityService
	gen      ai.Generator
	logger   *slog.Logger
}

// NewAnalyzeInterviewHandler creates a new handler for interview analysis jobs.
func NewAnalyzeInterviewHandler(activity service.ActivityService, gen ai.Generator, logger *slog.Logger) *AnalyzeInterviewHandler {
	return &AnalyzeInterviewHandler{
		activity: activity,
		gen:      gen,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *AnalyzeInterviewHandler) Type() string {
	return worker.JobTypeAnalyzeInterview
}

// Handle analyzes the transcript and finalizes the record. Losing a
// finalize race to another run is success.
func (h *AnalyzeInterviewHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.AnalyzeInterviewPayload
	if err := worker.DecodePayload(payload, &p); err != nil {
		return err
	}

	logger := h.logger.With("account_id", p.AccountID, "record_id", p.RecordID)

	rec, err := h.activity.Get(ctx, p.AccountID, p.RecordID)
	if err != nil {
		return classify(err)
	}
	if rec.Kind != domain.RecordInterviewResult || rec.Interview == nil {
		return worker.NewPermanentError(fmt.Errorf("record %s is not an interview result", rec.ID))
	}
	if !rec.Pending() {
		logger.Info("Interview already analyzed")
		return nil
	}

	res, err := h.gen.Generate(ctx, ai.Request{
		Task:       ai.TaskInterviewAnalysis,
		AccountID:  p.AccountID,
		Topic:      rec.Interview.Role,
		Difficulty: rec.Interview.Level,
		Text:       strings.Join(rec.Interview.Transcript, "\n"),
	})
	if err != nil {
		return classify(err)
	}

	analysis, err := ai.ParseAnalysis(res.Content)
	if err != nil {
		return classify(err)
	}

	err = h.activity.Finalize(ctx, p.AccountID, p.RecordID, analysis)
	if domain.IsAlreadyFinalized(err) {
		logger.Info("Interview finalized by another run")
		return nil
	}
	if err != nil {
		return classify(err)
	}

	logger.Info("Interview analyzed", "score", analysis.Score)
	return nil
}
