// This file implements the JSON API over the quota and activity ledgers.
//
// Routes handled:
//   - GET    /health                                      -> Health
//   - PUT    /api/accounts/{account}                      -> EnsureAccount
//   - DELETE /api/accounts/{account}                      -> DeleteAccount
//   - GET    /api/accounts/{account}/usage                -> GetUsage
//   - GET    /api/accounts/{account}/usage/{feature}      -> CheckFeature
//   - GET    /api/accounts/{account}/activity             -> ListActivity
//   - GET    /api/accounts/{account}/activity/{record}    -> GetActivity
//   - POST   /api/accounts/{account}/notes                -> GenerateNotes
//   - POST   /api/accounts/{account}/questions            -> GenerateQuestions
//   - POST   /api/accounts/{account}/resume/enhance       -> EnhanceResume
//   - POST   /api/accounts/{account}/resume/export        -> ExportResume
//   - POST   /api/accounts/{account}/interviews           -> StartInterview
//   - PUT    /api/accounts/{account}/interviews/{record}  -> RecordInterview
//   - POST   /api/accounts/{account}/quizzes              -> StartQuiz
//   - POST   /api/accounts/{account}/quizzes/answer       -> AnswerQuiz
//   - POST   /api/accounts/{account}/quizzes/submit       -> SubmitQuiz
//   - POST   /api/accounts/{account}/quizzes/discard      -> DiscardQuiz
//
// Identity is resolved upstream; the account id in the path is trusted.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/resume"
	"github.com/ZaidMomin2003/talxify/internal/service"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// APIHandler serves the account-scoped JSON API.
type APIHandler struct {
	quota    service.QuotaService
	activity service.ActivityService
	gate     *service.Gate
	quiz     service.QuizService
	db       Pinger
	logger   *slog.Logger
}

// NewAPIHandler creates a new APIHandler. db may be nil when the server runs
// on the in-memory store.
func NewAPIHandler(
	quota service.QuotaService,
	activity service.ActivityService,
	gate *service.Gate,
	quiz service.QuizService,
	db Pinger,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		quota:    quota,
		activity: activity,
		gate:     gate,
		quiz:     quiz,
		db:       db,
		logger:   logger,
	}
}

// RegisterRoutes registers API routes on the provided mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("PUT /api/accounts/{account}", h.EnsureAccount)
	mux.HandleFunc("DELETE /api/accounts/{account}", h.DeleteAccount)
	mux.HandleFunc("GET /api/accounts/{account}/usage", h.GetUsage)
	mux.HandleFunc("GET /api/accounts/{account}/usage/{feature}", h.CheckFeature)
	mux.HandleFunc("GET /api/accounts/{account}/activity", h.ListActivity)
	mux.HandleFunc("GET /api/accounts/{account}/activity/{record}", h.GetActivity)

	mux.HandleFunc("POST /api/accounts/{account}/notes", h.GenerateNotes)
	mux.HandleFunc("POST /api/accounts/{account}/questions", h.GenerateQuestions)
	mux.HandleFunc("POST /api/accounts/{account}/resume/enhance", h.EnhanceResume)
	mux.HandleFunc("POST /api/accounts/{account}/resume/export", h.ExportResume)
	mux.HandleFunc("POST /api/accounts/{account}/interviews", h.StartInterview)
	mux.HandleFunc("PUT /api/accounts/{account}/interviews/{record}", h.RecordInterview)

	mux.HandleFunc("POST /api/accounts/{account}/quizzes", h.StartQuiz)
	mux.HandleFunc("POST /api/accounts/{account}/quizzes/answer", h.AnswerQuiz)
	mux.HandleFunc("POST /api/accounts/{account}/quizzes/submit", h.SubmitQuiz)
	mux.HandleFunc("POST /api/accounts/{account}/quizzes/discard", h.DiscardQuiz)
}

// =============================================================================
// Response types
// =============================================================================

// FeatureUsageResponse is one row of the usage report.
type FeatureUsageResponse struct {
	Feature   domain.Feature `json:"feature"`
	Used      uint64         `json:"used"`
	Limit     *int64         `json:"limit"` // null when unlimited
	Remaining int64          `json:"remaining"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	AccountID     string                 `json:"account_id"`
	Plan          domain.PlanID          `json:"plan"`
	EffectivePlan domain.PlanID          `json:"effective_plan"`
	Status        string                 `json:"status"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     *time.Time             `json:"period_end,omitempty"`
	Features      []FeatureUsageResponse `json:"features"`
}

func usageToResponse(r *service.UsageReport) UsageResponse {
	out := UsageResponse{
		AccountID:     r.AccountID,
		Plan:          r.Plan,
		EffectivePlan: r.EffectivePlan,
		Status:        string(r.Status),
		PeriodStart:   r.PeriodStart,
		Features:      make([]FeatureUsageResponse, 0, len(r.Features)),
	}
	if !r.PeriodEnd.IsZero() {
		end := r.PeriodEnd
		out.PeriodEnd = &end
	}
	for _, f := range r.Features {
		row := FeatureUsageResponse{Feature: f.Feature, Used: f.Used, Remaining: f.Remaining}
		if !f.Limit.Unlimited {
			n := f.Limit.N
			row.Limit = &n
		}
		out.Features = append(out.Features, row)
	}
	return out
}

// CheckResponse answers whether the next use of a feature would be allowed.
// Used includes the unit that use would consume when allowed.
type CheckResponse struct {
	Feature   domain.Feature    `json:"feature"`
	Plan      domain.PlanID     `json:"plan"`
	Allowed   bool              `json:"allowed"`
	Used      uint64            `json:"used"`
	Limit     *int64            `json:"limit"` // null when unlimited
	Remaining int64             `json:"remaining"`
	Reason    domain.DenyReason `json:"reason,omitempty"`
}

func decisionToResponse(d *domain.Decision) CheckResponse {
	out := CheckResponse{
		Feature:   d.Feature,
		Plan:      d.Plan,
		Allowed:   d.Allowed,
		Used:      d.Used,
		Remaining: d.Remaining,
		Reason:    d.Reason,
	}
	if !d.Limit.Unlimited {
		n := d.Limit.N
		out.Limit = &n
	}
	return out
}

// ActivityResponse is the JSON view of a ledger record.
type ActivityResponse struct {
	ID        string                  `json:"id"`
	Kind      domain.RecordKind       `json:"kind"`
	Timestamp time.Time               `json:"timestamp"`
	Quiz      *domain.QuizResult      `json:"quiz,omitempty"`
	Interview *domain.InterviewResult `json:"interview,omitempty"`
	Note      *domain.NoteGeneration  `json:"note,omitempty"`
	Analysis  domain.Analysis         `json:"analysis"`
}

func activityToResponse(rec *domain.ActivityRecord) ActivityResponse {
	return ActivityResponse{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Timestamp: rec.Timestamp,
		Quiz:      rec.Quiz,
		Interview: rec.Interview,
		Note:      rec.Note,
		Analysis:  rec.Analysis,
	}
}

// QuizDraftResponse is the JSON view of an in-progress quiz.
type QuizDraftResponse struct {
	RecordID  string                `json:"record_id"`
	State     domain.SessionState   `json:"state"`
	Topic     string                `json:"topic"`
	Questions []domain.QuizQuestion `json:"questions"`
	Answers   []string              `json:"answers"`
	Cursor    int                   `json:"cursor"`
}

func draftToResponse(d *domain.QuizDraft) QuizDraftResponse {
	return QuizDraftResponse{
		RecordID:  d.RecordID,
		State:     d.State,
		Topic:     d.Key.Topic,
		Questions: d.Questions,
		Answers:   d.Answers,
		Cursor:    d.Cursor,
	}
}

// =============================================================================
// Health
// =============================================================================

// Health reports liveness and, when a database is configured, its reachability.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Accounts and ledgers
// =============================================================================

// EnsureAccount creates the account on the free plan if it does not exist.
func (h *APIHandler) EnsureAccount(w http.ResponseWriter, r *http.Request) {
	created, err := h.quota.EnsureAccount(r.Context(), r.PathValue("account"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

// DeleteAccount removes the account's entitlement and ledger.
func (h *APIHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.activity.DeleteAccount(r.Context(), r.PathValue("account")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage returns the account's plan and per-feature consumption.
func (h *APIHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	report, err := h.quota.Usage(r.Context(), r.PathValue("account"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToResponse(report))
}

// CheckFeature is a non-binding hint for clients deciding whether to offer a
// feature. Nothing is consumed; the gated call still decides.
func (h *APIHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	d, err := h.quota.Check(r.Context(), r.PathValue("account"), domain.Feature(r.PathValue("feature")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionToResponse(d))
}

// ListActivity returns the ledger newest first. Repeated ?kind= filters.
func (h *APIHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	var kinds []domain.RecordKind
	for _, k := range r.URL.Query()["kind"] {
		kinds = append(kinds, domain.RecordKind(k))
	}

	records, err := h.activity.Read(r.Context(), r.PathValue("account"), kinds...)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]ActivityResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, activityToResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

// GetActivity returns one ledger record.
func (h *APIHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	rec, err := h.activity.Get(r.Context(), r.PathValue("account"), r.PathValue("record"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityToResponse(rec))
}

// =============================================================================
// Gated features
// =============================================================================

// GenerateNotes charges one notes unit and returns the recorded notes.
func (h *APIHandler) GenerateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Level string `json:"level"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.gate.GenerateNotes(r.Context(), r.PathValue("account"), req.Topic, req.Level)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activityToResponse(rec))
}

// GenerateQuestions charges one question-generator unit.
func (h *APIHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		Difficulty string `json:"difficulty"`
		Count      int    `json:"count"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	questions, err := h.gate.GenerateQuestions(r.Context(), r.PathValue("account"), req.Topic, req.Difficulty, req.Count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// EnhanceResume charges one AI enhancement unit.
func (h *APIHandler) EnhanceResume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	text, err := h.gate.EnhanceResume(r.Context(), r.PathValue("account"), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// ExportResume charges one export and returns the rendered document. The
// format query parameter selects pdf (default) or txt.
func (h *APIHandler) ExportResume(w http.ResponseWriter, r *http.Request) {
	format := domain.ResumeFormat(r.URL.Query().Get("format"))
	renderer, err := resume.ForFormat(format)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError("api.export_resume", "format", "must be one of: pdf txt"))
		return
	}

	var doc domain.Resume
	if !h.decode(w, r, &doc) {
		return
	}

	var buf bytes.Buffer
	if err := h.gate.RenderResume(r.Context(), r.PathValue("account"), &doc, renderer, &buf); err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resume.Filename(&doc, renderer.Format())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// StartInterview charges one interview unit and returns the session.
func (h *APIHandler) StartInterview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role  string `json:"role"`
		Level string `json:"level"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.gate.StartInterview(r.Context(), r.PathValue("account"), req.Role, req.Level)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"record_id": session.RecordID,
		"role":      session.Role,
		"level":     session.Level,
		"briefing":  session.Briefing,
	})
}

// RecordInterview stores a finished interview and schedules its analysis.
// Safe to repeat.
func (h *APIHandler) RecordInterview(w http.ResponseWriter, r *http.Request) {
	var result domain.InterviewResult
	if !h.decode(w, r, &result) {
		return
	}

	rec, err := h.gate.RecordInterview(r.Context(), r.PathValue("account"), r.PathValue("record"), result)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, activityToResponse(rec))
}

// =============================================================================
// Quizzes
// =============================================================================

type quizRequest struct {
	Topic         string `json:"topic"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
	Index         int    `json:"index"`
	Answer        string `json:"answer"`
}

func (q quizRequest) key(accountID string) domain.DraftKey {
	return domain.NewDraftKey(accountID, q.Topic, q.Difficulty, q.QuestionCount)
}

// StartQuiz resumes the matching draft or charges for a new quiz.
func (h *APIHandler) StartQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.quiz.Start(r.Context(), service.StartQuizParams{
		AccountID:     r.PathValue("account"),
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftToResponse(d))
}

// AnswerQuiz records one answer and moves the cursor to it.
func (h *APIHandler) AnswerQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.quiz.Answer(r.Context(), req.key(r.PathValue("account")), req.Index, req.Answer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftToResponse(d))
}

// SubmitQuiz records the quiz and schedules grading.
func (h *APIHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.quiz.Submit(r.Context(), req.key(r.PathValue("account")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, activityToResponse(rec))
}

// DiscardQuiz drops the draft. The charged unit is not refunded.
func (h *APIHandler) DiscardQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.quiz.Discard(r.Context(), req.key(r.PathValue("account"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeJSON(w, r, h.logger, v)
}

// decodeJSON reads one JSON object from the body and answers 400 when it
// cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Request body must be valid JSON."
		if errors.Is(err, io.EOF) {
			msg = "Request body is required."
		} else if strings.HasPrefix(err.Error(), "json: unknown field") {
			msg = "Request body has an unknown field."
		}
		ErrorResponse(w, r, logger, domain.Invalid("api.decode", msg))
		return false
	}
	return true
}

// fail writes err, treating retryable generator failures as unavailable.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if ai.IsRetryable(err) {
		err = domain.Unavailable(err, "api.generate", "generation service unavailable")
	}
	ErrorResponse(w, r, h.logger, err)
}
