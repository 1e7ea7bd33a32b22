// Package classify implements the classification engine: a provider-backed
// classifier with a deterministic keyword fallback.
//
// The central contract is totality: Classify always returns a
// Classification, whatever the provider does. The pipeline must never
// stall or lose a message because the classifier is unavailable.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
)

// Classifier is the classification capability. Implementations are
// provider-backed, rule-based, or statistical; the engine below is the
// provider-backed one with a rule-based fallback baked in.
type Classifier interface {
	Classify(ctx context.Context, subject, body, senderEmail string) domain.Classification
}

// Config bounds the engine.
type Config struct {
	Categories      domain.CategorySet
	Priorities      domain.PrioritySet
	BodyTruncateLen int           // characters of body sent to the provider (default: 1000)
	Timeout         time.Duration // per provider attempt (default: 30s)
	MaxRetries      int           // re-asks after a parse failure; 0 is honored, negative means the default of 1
}

func (c *Config) applyDefaults() {
	if len(c.Categories) == 0 {
		c.Categories = domain.DefaultCategories()
	}
	if len(c.Priorities) == 0 {
		c.Priorities = domain.DefaultPriorities()
	}
	if c.BodyTruncateLen <= 0 {
		c.BodyTruncateLen = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 1
	}
}

// Engine classifies messages through the completion provider and degrades
// to the keyword fallback when the provider is unusable.
type Engine struct {
	provider out.CompletionProvider
	fallback *KeywordClassifier
	cfg      Config
	log      zerolog.Logger
}

// NewEngine creates a classification engine. provider may be nil, in which
// case every call takes the fallback path.
func NewEngine(provider out.CompletionProvider, fallback *KeywordClassifier, cfg Config, log zerolog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		provider: provider,
		fallback: fallback,
		cfg:      cfg,
		log:      log.With().Str("component", "classify").Logger(),
	}
}

// providerResponse is the structured payload the prompt demands.
type providerResponse struct {
	Category   string          `json:"category"`
	Priority   string          `json:"priority"`
	Confidence json.RawMessage `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// Classify assigns a category/priority/confidence/reasoning tuple. It
// never returns an error: a provider that times out, errors, or keeps
// producing unusable output lands on the fallback path, and the Source
// field records which path won.
func (e *Engine) Classify(ctx context.Context, subject, body, senderEmail string) domain.Classification {
	if e.provider == nil {
		return e.fallback.Classify(ctx, subject, body, senderEmail)
	}

	truncated := truncate(body, e.cfg.BodyTruncateLen)
	userPrompt := buildUserPrompt(subject, senderEmail, truncated, e.cfg.Categories, e.cfg.Priorities)

	systemPrompt := systemPromptBase
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		raw, err := e.provider.CompleteJSON(callCtx, systemPrompt, userPrompt)
		cancel()
		if err != nil {
			// Transport-level trouble: re-asking with a stricter prompt
			// will not help, go straight to the fallback.
			e.log.Warn().Err(err).Msg("provider call failed, using fallback classification")
			return e.fallback.Classify(ctx, subject, body, senderEmail)
		}

		result, parseErr := e.parse(raw)
		if parseErr == nil {
			return result
		}

		e.log.Warn().Err(parseErr).Int("attempt", attempt+1).Msg("unusable provider response")
		// Re-ask once with the strict variant before giving up.
		systemPrompt = systemPromptStrict
	}

	return e.fallback.Classify(ctx, subject, body, senderEmail)
}

// parse validates the provider payload against the closed sets. Any
// deviation (malformed JSON, out-of-set value after normalization,
// non-numeric or out-of-range confidence) is a parse failure.
func (e *Engine) parse(raw string) (domain.Classification, error) {
	cleaned := stripFences(raw)

	var resp providerResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return domain.Classification{}, fmt.Errorf("malformed provider JSON: %w", err)
	}

	category, ok := e.cfg.Categories.Normalize(resp.Category)
	if !ok {
		return domain.Classification{}, fmt.Errorf("category %q outside the configured set", resp.Category)
	}

	priority, ok := e.cfg.Priorities.Normalize(resp.Priority)
	if !ok {
		return domain.Classification{}, fmt.Errorf("priority %q outside the configured set", resp.Priority)
	}

	confidence, err := parseConfidence(resp.Confidence)
	if err != nil {
		return domain.Classification{}, err
	}

	return domain.Classification{
		Category:   category,
		Priority:   priority,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(resp.Reasoning),
		Source:     domain.SourceProvider,
	}, nil
}

// parseConfidence accepts a JSON number in [0,1]. Anything else is a parse
// failure rather than a value to rescue.
func parseConfidence(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing confidence")
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("non-numeric confidence %s", string(raw))
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence %v outside [0,1]", v)
	}
	return v, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// truncate bounds the body sent to the provider. Lossy but deliberate:
// the first kilobyte carries the signal, and the cut keeps cost and
// latency predictable.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
