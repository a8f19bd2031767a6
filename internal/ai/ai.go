// Package ai defines the content generator used by gated features.
//
// Generation is opaque to the quota and ledger code: callers pass a Request,
// get back text or an error, and never interpret provider-specific failures.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// Generator produces content for one task.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Task selects the prompt.
type Task string

const (
	TaskQuizQuestions     Task = "quiz_questions"
	TaskStudyNotes        Task = "study_notes"
	TaskQuestionBank      Task = "question_bank"
	TaskResumeEnhancement Task = "resume_enhancement"
	TaskQuizGrading       Task = "quiz_grading"
	TaskInterviewAnalysis Task = "interview_analysis"
	TaskInterviewPrompt   Task = "interview_prompt"
)

// Request carries the inputs a task needs. Unused fields are ignored.
type Request struct {
	Task       Task
	AccountID  string
	Topic      string
	Difficulty string
	Count      int
	Text       string // résumé text, job description or interview transcript
	Questions  []domain.QuizQuestion
	Answers    []string
}

// Validate checks the fields the task needs are present.
func (r Request) Validate() error {
	switch r.Task {
	case TaskQuizQuestions, TaskQuestionBank:
		if r.Topic == "" || r.Count <= 0 {
			return fmt.Errorf("%w: topic and count are required", EAIInvalidRequest)
		}
	case TaskStudyNotes, TaskInterviewPrompt:
		if r.Topic == "" {
			return fmt.Errorf("%w: topic is required", EAIInvalidRequest)
		}
	case TaskResumeEnhancement, TaskInterviewAnalysis:
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("%w: text is required", EAIInvalidRequest)
		}
	case TaskQuizGrading:
		if len(r.Questions) == 0 {
			return fmt.Errorf("%w: questions are required", EAIInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown task %q", EAIInvalidRequest, r.Task)
	}
	return nil
}

// Result is generated content plus usage.
type Result struct {
	Content string
	Usage   UsageInfo
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostCents    float64
	Duration     time.Duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error values for provider failures
var (
	EAIRateLimit      = errors.New("ai provider rate limit exceeded")
	EAIInvalidRequest = errors.New("invalid ai request")
	EAITimeout        = errors.New("ai request timed out")
	EAIUnavailable    = errors.New("ai service temporarily unavailable")
	EAIUnauthorized   = errors.New("ai provider authentication failed")
	EAIMalformed      = errors.New("ai response was not in the expected format")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// =============================================================================
// Structured output
// =============================================================================

// ParseQuestions decodes quiz or question-bank output.
func ParseQuestions(content string) ([]domain.QuizQuestion, error) {
	var out struct {
		Questions []domain.QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", EAIMalformed, err)
	}
	if len(out.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", EAIMalformed)
	}
	return out.Questions, nil
}

// ParseAnalysis decodes grading or interview-analysis output.
func ParseAnalysis(content string) (domain.Analysis, error) {
	var out struct {
		Score       int      `json:"score"`
		Feedback    string   `json:"feedback"`
		PerQuestion []string `json:"per_question"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", EAIMalformed, err)
	}
	if out.Score < 0 || out.Score > 100 {
		return domain.Analysis{}, fmt.Errorf("%w: score %d out of range", EAIMalformed, out.Score)
	}
	return domain.Analysis{
		Score:       out.Score,
		Feedback:    out.Feedback,
		PerQuestion: out.PerQuestion,
	}, nil
}

// extractJSON trims prose or code fences models sometimes put around JSON.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
