package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"

	// Pricing in cents per 1M tokens
	PricingInputCents  = 300
	PricingOutputCents = 1500
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Generator using the Messages API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

var _ ai.Generator = (*Provider)(nil)

// New creates a new Anthropic provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.ProviderConfig.RequestTimeout},
		logger: logger,
	}, nil
}

// Generate runs one task against Claude.
func (p *Provider) Generate(ctx context.Context, req ai.Request) (res *ai.Result, err error) {
	defer func() { metrics.AICall(string(req.Task), err) }()

	if err := req.Validate(); err != nil {
		return nil, ai.WrapError(string(req.Task), err)
	}

	start := time.Now()

	body, err := json.Marshal(apiRequest{
		Model:     p.config.Model,
		MaxTokens: maxTokens(req.Task),
		System:    ai.SystemPrompt(req.Task),
		Messages: []apiMessage{
			{Role: "user", Content: []apiContent{{Type: "text", Text: ai.UserPrompt(req)}}},
		},
	})
	if err != nil {
		return nil, ai.WrapError("marshal request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError(string(req.Task), err)
	}

	content, err := textContent(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	usage := ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostCents:    calculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Duration:     time.Since(start),
	}
	metrics.AITokens(usage.InputTokens, usage.OutputTokens, usage.CostCents)

	p.logger.Debug("AI generation complete",
		"task", req.Task,
		"account_id", req.AccountID,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", usage.Duration,
	)

	return &ai.Result{Content: content, Usage: usage}, nil
}

func maxTokens(t ai.Task) int {
	switch t {
	case ai.TaskStudyNotes, ai.TaskResumeEnhancement:
		return 4096
	default:
		return 2048
	}
}

// executeWithRetry sends body, retrying rate limits and outages with
// exponential backoff. Each attempt builds a fresh request.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	backoff := retry.NewExponential(p.config.ProviderConfig.RetryBaseDelay)
	backoff = retry.WithMaxRetries(uint64(p.config.ProviderConfig.MaxRetries-1), backoff)

	var result *apiResponse
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, err := p.executeRequest(ctx, body)
		if err != nil {
			if ai.IsRetryable(err) {
				p.logger.Info("Retrying AI request", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Network errors are typically retryable
		return nil, fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ai.EAIUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to provider errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, errResp.Error.Message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

func textContent(resp *apiResponse) (string, error) {
	for _, c := range resp.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// calculateCost calculates the cost in cents for the given token usage
func calculateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens*PricingInputCents+outputTokens*PricingOutputCents) / 1_000_000
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
	Model   string       `json:"model"`
	Usage   apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
