package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/metrics"
)

// OpenAIChatProvider implements ChatProvider against any OpenAI-compatible
// chat completion endpoint (vLLM, TGI, llama.cpp server, or the hosted API).
type OpenAIChatProvider struct {
	client      *openai.Client
	model       string
	apiKey      string
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// OpenAIChatOption configures the OpenAIChatProvider.
type OpenAIChatOption func(*OpenAIChatProvider)

// WithChatLogger sets the logger.
func WithChatLogger(logger *slog.Logger) OpenAIChatOption {
	return func(p *OpenAIChatProvider) {
		p.logger = logger
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(requestsPerMinute int) OpenAIChatOption {
	return func(p *OpenAIChatProvider) {
		p.rateLimiter = NewRateLimiter(RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			BurstSize:         requestsPerMinute / 4,
		})
	}
}

// NewOpenAIChatProvider creates a chat provider from configuration.
func NewOpenAIChatProvider(cfg config.LLMConfig, opts ...OpenAIChatOption) *OpenAIChatProvider {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		// Local OpenAI-compatible servers accept any non-empty key.
		apiKey = "not-needed"
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	p := &OpenAIChatProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		apiKey: apiKey,
		rateLimiter: NewRateLimiter(RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit,
			BurstSize:         cfg.RateLimit / 4,
		}),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the provider's unique identifier.
func (p *OpenAIChatProvider) Name() string {
	return "openai-compatible"
}

// Available returns true if the provider is configured and ready.
func (p *OpenAIChatProvider) Available() bool {
	return p.model != ""
}

// Complete sends the request and returns the assistant message text.
func (p *OpenAIChatProvider) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if !p.Available() {
		return "", fmt.Errorf("chat provider not available; model not configured")
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed; %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		metrics.RecordProviderRequest(p.model, time.Since(start), 0, 0, err)
		return "", fmt.Errorf("chat completion failed; %w", err)
	}
	metrics.RecordProviderRequest(p.model, time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	p.logger.Debug("chat completion",
		"model", p.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))

	return resp.Choices[0].Message.Content, nil
}
