// Package llm is the generative model gateway, spoken over the OpenAI
// chat-completions protocol. Gemini and other compatible endpoints work
// through BaseURL.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"mailbrief/core/port/out"
	"mailbrief/pkg/resilience"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.2
	DefaultTimeout     = 90 * time.Second
)

var ErrEmptyCompletion = errors.New("model returned no choices")

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	jsonMode    bool
	breaker     *resilience.Breaker
}

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// JSONMode asks the endpoint for a JSON object response.
	JSONMode bool
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		timeout:     timeout,
		jsonMode:    cfg.JSONMode,
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerConfig("llm-api")),
	}
}

// Generate sends prompt as a single user message and returns the raw text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var content string
	err := c.breaker.Execute(func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		content = resp.Choices[0].Message.Content
		return nil
	}, isServerFailure)
	if err != nil {
		return "", wrapError(err)
	}
	return content, nil
}

// isServerFailure reports whether err says something about the endpoint's
// health, as opposed to a bad request, credentials or a caller that gave up.
func isServerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, ErrEmptyCompletion)
}

func wrapError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return out.NewProviderError("llm", out.ProviderErrServer, "circuit open", err, true)
	case errors.Is(err, context.DeadlineExceeded):
		return out.NewProviderError("llm", out.ProviderErrNetwork, "request timed out", err, true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return out.NewProviderError("llm", out.ProviderErrAuth, "access denied", err, false)
	case status == http.StatusTooManyRequests:
		return out.NewProviderError("llm", out.ProviderErrRateLimit, "rate limit exceeded", err, true)
	case status >= 400 && status < 500:
		return out.NewProviderError("llm", out.ProviderErrInvalidInput, "request rejected", err, false)
	default:
		return out.NewProviderError("llm", out.ProviderErrServer, "completion failed", err, true)
	}
}

var _ out.ModelGateway = (*Client)(nil)
