package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/pkg/logger"
)

// fakeProvider replays canned responses, one per call.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
	systems   []string
	users     []string
}

func (f *fakeProvider) CompleteJSON(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	f.systems = append(f.systems, systemPrompt)
	f.users = append(f.users, userPrompt)

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func newTestEngine(provider *fakeProvider, maxRetries int) *Engine {
	fallback := NewKeywordClassifier(nil, nil,
		map[string][]string{"Technique": {"bug", "erreur"}},
		map[string][]string{"Critique": {"urgent"}})
	var p *fakeProvider
	if provider != nil {
		p = provider
	}
	cfg := Config{MaxRetries: maxRetries}
	if p == nil {
		return NewEngine(nil, fallback, cfg, logger.Nop())
	}
	return NewEngine(p, fallback, cfg, logger.Nop())
}

func TestClassifyValidResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"category":"Technique","priority":"Haute","confidence":0.85,"reasoning":"API errors reported"}`,
	}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "API down", "the api returns 500", "user@example.com")

	if got.Category != domain.CategoryTechnique {
		t.Errorf("category = %q, want Technique", got.Category)
	}
	if got.Priority != domain.PriorityHaute {
		t.Errorf("priority = %q, want Haute", got.Priority)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
	if got.Reasoning != "API errors reported" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
	if got.Source != domain.SourceProvider {
		t.Errorf("source = %q, want provider", got.Source)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestClassifyFencedResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"```json\n{\"category\":\"Support\",\"priority\":\"Basse\",\"confidence\":0.6,\"reasoning\":\"question\"}\n```",
	}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "question", "comment faire", "u@e.com")
	if got.Category != domain.CategorySupport || got.Source != domain.SourceProvider {
		t.Errorf("got %+v, want Support from provider", got)
	}
}

func TestClassifySynonymNormalization(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"category":"technical","priority":"urgent","confidence":0.9,"reasoning":"r"}`,
	}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "s", "b", "u@e.com")
	if got.Category != domain.CategoryTechnique {
		t.Errorf("category = %q, want Technique via synonym", got.Category)
	}
	if got.Priority != domain.PriorityCritique {
		t.Errorf("priority = %q, want Critique via synonym", got.Priority)
	}
}

func TestClassifyParseFailureThenStrictRetry(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`not json at all`,
		`{"category":"Facturation","priority":"Moyenne","confidence":0.7,"reasoning":"invoice"}`,
	}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "facture", "probleme de facture", "u@e.com")

	if provider.calls != 2 {
		t.Fatalf("provider called %d times, want 2", provider.calls)
	}
	if provider.systems[0] == provider.systems[1] {
		t.Error("retry should use the strict system prompt")
	}
	if got.Category != domain.CategoryFacturation || got.Source != domain.SourceProvider {
		t.Errorf("got %+v, want Facturation from provider after retry", got)
	}
}

func TestClassifyRetryExhaustedFallsBack(t *testing.T) {
	provider := &fakeProvider{responses: []string{`garbage`, `more garbage`}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "bug urgent", "erreur", "u@e.com")

	if provider.calls != 2 {
		t.Fatalf("provider called %d times, want 2", provider.calls)
	}
	if got.Source != domain.SourceFallback {
		t.Errorf("source = %q, want fallback", got.Source)
	}
	if got.Category != domain.CategoryTechnique {
		t.Errorf("category = %q, want Technique from keywords", got.Category)
	}
	if got.Confidence != 0.0 {
		t.Errorf("confidence = %v, want 0.0", got.Confidence)
	}
}

func TestClassifyZeroRetriesHonored(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`garbage`,
		`{"category":"Autre","priority":"Basse","confidence":0.5,"reasoning":"r"}`,
	}}
	engine := newTestEngine(provider, 0)

	got := engine.Classify(context.Background(), "bug urgent", "erreur", "u@e.com")

	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (no re-ask budget)", provider.calls)
	}
	if got.Source != domain.SourceFallback {
		t.Errorf("source = %q, want fallback after the single attempt", got.Source)
	}
}

func TestClassifyNegativeRetriesMeansDefault(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`garbage`,
		`{"category":"Support","priority":"Basse","confidence":0.6,"reasoning":"r"}`,
	}}
	engine := newTestEngine(provider, -1)

	got := engine.Classify(context.Background(), "s", "b", "u@e.com")

	if provider.calls != 2 {
		t.Fatalf("provider called %d times, want 2 (default single re-ask)", provider.calls)
	}
	if got.Category != domain.CategorySupport || got.Source != domain.SourceProvider {
		t.Errorf("got %+v, want Support from provider after re-ask", got)
	}
}

func TestClassifyTransportErrorImmediateFallback(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("connection refused")}}
	engine := newTestEngine(provider, 1)

	got := engine.Classify(context.Background(), "urgent bug", "erreur serveur", "u@e.com")

	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (no re-ask on transport error)", provider.calls)
	}
	if got.Source != domain.SourceFallback {
		t.Errorf("source = %q, want fallback", got.Source)
	}
	if got.Priority != domain.PriorityCritique {
		t.Errorf("priority = %q, want Critique from keywords", got.Priority)
	}
}

func TestClassifyNilProviderUsesFallback(t *testing.T) {
	engine := newTestEngine(nil, 1)
	got := engine.Classify(context.Background(), "hello", "nothing special", "u@e.com")
	if got.Source != domain.SourceFallback {
		t.Errorf("source = %q, want fallback", got.Source)
	}
	if got.Category != domain.CategoryAutre || got.Priority != domain.PriorityMoyenne {
		t.Errorf("got %v/%v, want Autre/Moyenne defaults", got.Category, got.Priority)
	}
}

func TestClassifyBodyTruncation(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"category":"Autre","priority":"Basse","confidence":0.5,"reasoning":"r"}`,
	}}
	engine := NewEngine(provider, NewKeywordClassifier(nil, nil, nil, nil),
		Config{BodyTruncateLen: 10}, logger.Nop())

	body := strings.Repeat("x", 50) + "MARKER"
	engine.Classify(context.Background(), "s", body, "u@e.com")

	if strings.Contains(provider.users[0], "MARKER") {
		t.Error("body past the truncation bound leaked into the prompt")
	}
	if !strings.Contains(provider.users[0], strings.Repeat("x", 10)) {
		t.Error("truncated body prefix missing from the prompt")
	}
}

func TestParseRejections(t *testing.T) {
	engine := newTestEngine(&fakeProvider{}, 1)

	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"category":`},
		{"out-of-set category", `{"category":"Spam","priority":"Basse","confidence":0.5,"reasoning":""}`},
		{"out-of-set priority", `{"category":"Autre","priority":"Extreme","confidence":0.5,"reasoning":""}`},
		{"missing confidence", `{"category":"Autre","priority":"Basse","reasoning":""}`},
		{"non-numeric confidence", `{"category":"Autre","priority":"Basse","confidence":"high","reasoning":""}`},
		{"confidence above one", `{"category":"Autre","priority":"Basse","confidence":1.5,"reasoning":""}`},
		{"negative confidence", `{"category":"Autre","priority":"Basse","confidence":-0.1,"reasoning":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.parse(tt.raw); err == nil {
				t.Errorf("parse(%q) accepted, want rejection", tt.raw)
			}
		})
	}
}

func TestParseBoundaryConfidence(t *testing.T) {
	engine := newTestEngine(&fakeProvider{}, 1)
	for _, raw := range []string{
		`{"category":"Autre","priority":"Basse","confidence":0,"reasoning":""}`,
		`{"category":"Autre","priority":"Basse","confidence":1,"reasoning":""}`,
	} {
		if _, err := engine.parse(raw); err != nil {
			t.Errorf("parse(%q) rejected boundary confidence: %v", raw, err)
		}
	}
}
