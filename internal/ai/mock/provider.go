package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing. Err takes precedence.
	Response *ai.Result
	Err      error

	// Call tracking for testing
	Calls    int
	Requests []ai.Request
}

var _ ai.Generator = (*Provider)(nil)

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// SetError makes subsequent calls fail with err.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// CallCount returns the number of Generate calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}

// Generate returns canned output shaped like the real provider's.
func (p *Provider) Generate(ctx context.Context, req ai.Request) (*ai.Result, error) {
	p.mu.Lock()
	p.Calls++
	p.Requests = append(p.Requests, req)
	resp, err := p.Response, p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, ai.WrapError(string(req.Task), err)
	}
	if resp != nil {
		return resp, nil
	}

	p.logger.Debug("mock AI generation", "task", req.Task, "account_id", req.AccountID)

	content, err := cannedContent(req)
	if err != nil {
		return nil, ai.WrapError(string(req.Task), err)
	}

	return &ai.Result{
		Content: content,
		Usage: ai.UsageInfo{
			Model:        "mock",
			InputTokens:  len(ai.UserPrompt(req)) / 4,
			OutputTokens: len(content) / 4,
			Duration:     time.Millisecond,
		},
	}, nil
}

func cannedContent(req ai.Request) (string, error) {
	switch req.Task {
	case ai.TaskQuizQuestions, ai.TaskQuestionBank:
		type question struct {
			Prompt string `json:"prompt"`
			Hint   string `json:"hint"`
		}
		qs := make([]question, req.Count)
		for i := range qs {
			qs[i] = question{
				Prompt: fmt.Sprintf("%s question %d (%s)", req.Topic, i+1, req.Difficulty),
				Hint:   "Think about the edge cases first.",
			}
		}
		b, err := json.Marshal(map[string]any{"questions": qs})
		return string(b), err

	case ai.TaskQuizGrading:
		answered := 0
		perQuestion := make([]string, len(req.Questions))
		for i := range req.Questions {
			if i < len(req.Answers) && strings.TrimSpace(req.Answers[i]) != "" {
				answered++
				perQuestion[i] = "Answered."
			} else {
				perQuestion[i] = "No answer given."
			}
		}
		b, err := json.Marshal(map[string]any{
			"score":        answered * 100 / len(req.Questions),
			"feedback":     fmt.Sprintf("%d of %d questions answered.", answered, len(req.Questions)),
			"per_question": perQuestion,
		})
		return string(b), err

	case ai.TaskInterviewAnalysis:
		b, err := json.Marshal(map[string]any{
			"score":        70,
			"feedback":     "Clear communication. Go deeper on trade-offs.",
			"per_question": []string{},
		})
		return string(b), err

	case ai.TaskStudyNotes:
		return fmt.Sprintf("# %s\n\n## Key ideas\n\n- Definition\n- Complexity\n- Worked example\n", req.Topic), nil

	case ai.TaskInterviewPrompt:
		return fmt.Sprintf("Welcome to your %s interview. We will start with your background.", req.Topic), nil

	default:
		return strings.TrimSpace(req.Text), nil
	}
}
