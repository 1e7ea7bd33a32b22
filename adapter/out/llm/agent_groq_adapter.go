// Package llm implements the completion provider adapter on Groq's
// OpenAI-compatible chat API.
package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
	"github.com/legb78/mail-classification-agent/pkg/ratelimit"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

const DefaultModel = "llama-3.1-8b-instant"

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64

	// RequestsPerSecond caps the call rate so a large batch cannot blow
	// through the provider quota at cycle start. Zero disables the cap.
	RequestsPerSecond float64
	Burst             int
}

// GroqAdapter implements out.CompletionProvider against Groq. A circuit
// breaker fails calls fast while the API is degraded; the classifier then
// falls through to its keyword path instead of stalling the batch.
type GroqAdapter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
	limiter     *ratelimit.Limiter
}

// NewGroqAdapter creates a Groq-backed completion provider.
func NewGroqAdapter(cfg Config) *GroqAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL

	cbSettings := gobreaker.Settings{
		Name:        "groq-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	}

	var limiter *ratelimit.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}

	return &GroqAdapter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		limiter:     limiter,
	}
}

// CompleteJSON sends a system+user prompt pair and asks for a JSON object
// response. Returned errors carry the transient/permanent taxonomy.
func (a *GroqAdapter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", apperr.Transient(apperr.CodeProviderError, "rate limit wait interrupted", err)
		}
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.model,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			if isClientError(err) {
				// Client-side errors (bad key, malformed request) must not
				// trip the breaker.
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", a.wrapError(err)
	}
	return result.(string), nil
}

// IsCircuitOpen reports whether calls are currently failing fast.
func (a *GroqAdapter) IsCircuitOpen() bool {
	return a.cb.State() == gobreaker.StateOpen
}

func (a *GroqAdapter) wrapError(err error) error {
	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Transient(apperr.CodeCircuitOpen, "completion provider circuit open", err)
	}
	if isClientError(err) {
		return apperr.Permanent(apperr.CodeProviderError, "completion provider rejected request", err)
	}
	return apperr.Transient(apperr.CodeProviderError, "completion provider call failed", err)
}

// isClientError reports whether the error is a 4xx other than 429/408,
// i.e. our request is at fault and retrying cannot help.
func isClientError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 408, 429:
			return false
		}
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 408, 429:
			return false
		}
		return reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500
	}
	return false
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }

func (e *nonCircuitError) Unwrap() error { return e.err }

var _ out.CompletionProvider = (*GroqAdapter)(nil)
