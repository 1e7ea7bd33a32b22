package domain

import (
	"strings"
	"testing"
	"time"
)

func TestSyntheticMessageID(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	a := SyntheticMessageID("u@e.com", "subject", at, "body")
	b := SyntheticMessageID("u@e.com", "subject", at, "body")
	if a != b {
		t.Errorf("identical inputs gave different IDs: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "synth-") {
		t.Errorf("ID = %q, want synth- prefix", a)
	}

	c := SyntheticMessageID("u@e.com", "subject", at, "other body")
	if a == c {
		t.Error("different bodies gave the same ID")
	}
	d := SyntheticMessageID("u@e.com", "subject", at.Add(time.Second), "body")
	if a == d {
		t.Error("different timestamps gave the same ID")
	}
}

func TestCategorySetNormalize(t *testing.T) {
	set := DefaultCategories()

	tests := []struct {
		raw  string
		want Category
		ok   bool
	}{
		{"Technique", CategoryTechnique, true},
		{"technique", CategoryTechnique, true},
		{"  Support  ", CategorySupport, true},
		{"technical", CategoryTechnique, true}, // synonym
		{"billing", CategoryFacturation, true}, // synonym
		{"Spam", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := set.Normalize(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrioritySetNormalize(t *testing.T) {
	set := DefaultPriorities()

	tests := []struct {
		raw  string
		want Priority
		ok   bool
	}{
		{"Critique", PriorityCritique, true},
		{"urgent", PriorityCritique, true}, // synonym
		{"high", PriorityHaute, true},      // synonym
		{"moyenne", PriorityMoyenne, true},
		{"whenever", "", false},
	}
	for _, tt := range tests {
		got, ok := set.Normalize(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBuildDescription(t *testing.T) {
	digest := ExtractionDigest{
		MainIssue:        "serveur en panne",
		ProductOrService: "API",
		ReferenceNumber:  "REF-1",
	}
	got := BuildDescription("corps du message", digest)

	for _, want := range []string{
		"corps du message",
		"Probleme: serveur en panne",
		"Produit/Service: API",
		"Reference: REF-1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("description missing %q:\n%s", want, got)
		}
	}
}

func TestBuildDescriptionTruncatesExcerpt(t *testing.T) {
	long := strings.Repeat("é", 500)
	got := BuildDescription(long, ExtractionDigest{})

	if !strings.HasSuffix(got, "...") {
		t.Errorf("long excerpt not marked truncated: %q", got[:40])
	}
	if runes := []rune(strings.TrimSuffix(got, "...")); len(runes) != 200 {
		t.Errorf("excerpt length = %d runes, want 200", len(runes))
	}
}

func TestBuildDescriptionEmptyDigest(t *testing.T) {
	got := BuildDescription("corps", ExtractionDigest{})
	if got != "corps" {
		t.Errorf("description = %q, want excerpt only", got)
	}
}

func TestCycleReportCounters(t *testing.T) {
	r := &CycleReport{Outcomes: []MessageOutcome{
		{Kind: OutcomeCreated},
		{Kind: OutcomeCreated},
		{Kind: OutcomeSkippedDuplicate},
		{Kind: OutcomeFailedRetryable},
		{Kind: OutcomeFailedPermanent},
		{Kind: OutcomeWouldCreate},
	}}

	if r.Created() != 2 || r.Skipped() != 1 || r.Failed() != 2 {
		t.Errorf("counters = %d/%d/%d, want 2/1/2", r.Created(), r.Skipped(), r.Failed())
	}
	if !(MessageOutcome{Kind: OutcomeFailedRetryable}).Retryable() {
		t.Error("failed_retryable not retryable")
	}
	if (MessageOutcome{Kind: OutcomeFailedPermanent}).Retryable() {
		t.Error("failed_permanent should not be retryable")
	}
}
