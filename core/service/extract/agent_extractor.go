// Package extract produces the short structured digest (main issue,
// product/service, reference number) attached to a ticket's description.
// Extraction is strictly best-effort: it never fails the pipeline, a
// provider problem just yields an empty digest.
package extract

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

const systemPrompt = `You are an expert at extracting key information from
support tickets. Respond with a single valid JSON object and nothing else.`

// Config bounds the extraction call.
type Config struct {
	BodyTruncateLen int           // characters of body sent to the provider (default: 1500)
	Timeout         time.Duration // per provider call (default: 30s)
}

// Extractor runs the digest extraction against the completion provider.
type Extractor struct {
	provider out.CompletionProvider
	cfg      Config
	log      zerolog.Logger
}

// New creates an Extractor. provider may be nil; extraction then always
// returns an empty digest.
func New(provider out.CompletionProvider, cfg Config, log zerolog.Logger) *Extractor {
	if cfg.BodyTruncateLen <= 0 {
		cfg.BodyTruncateLen = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{
		provider: provider,
		cfg:      cfg,
		log:      log.With().Str("component", "extract").Logger(),
	}
}

// Extract returns the structured digest for one message. Every failure
// mode degrades to an empty digest.
func (e *Extractor) Extract(ctx context.Context, subject, body string) domain.ExtractionDigest {
	if e.provider == nil {
		return domain.ExtractionDigest{}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.provider.CompleteJSON(callCtx, systemPrompt, buildPrompt(subject, truncate(body, e.cfg.BodyTruncateLen)))
	if err != nil {
		e.log.Warn().Err(err).Msg("extraction provider call failed")
		return domain.ExtractionDigest{}
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var resp struct {
		MainIssue        string `json:"main_issue"`
		ProductOrService string `json:"product_or_service"`
		ReferenceNumber  string `json:"reference_number"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &resp); err != nil {
		e.log.Warn().Err(err).Msg("unusable extraction response")
		return domain.ExtractionDigest{}
	}

	return domain.ExtractionDigest{
		MainIssue:        sanitize(resp.MainIssue),
		ProductOrService: sanitize(resp.ProductOrService),
		ReferenceNumber:  sanitize(resp.ReferenceNumber),
	}
}

func buildPrompt(subject, body string) string {
	return fmt.Sprintf(`Extract the key information from this support ticket.

Subject: %s
Content: %s

Respond in JSON with exactly these fields (use an empty string when the
information is absent):
- "main_issue": the main problem described, in one short sentence
- "product_or_service": the product or service concerned
- "reference_number": any reference number or identifier mentioned`,
		subject, body)
}

// sanitize drops the placeholder values models emit for absent fields.
func sanitize(s string) string {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "n/a", "na", "none", "null", "unknown", "-":
		return ""
	}
	return trimmed
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
