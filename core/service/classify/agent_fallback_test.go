package classify

import (
	"context"
	"testing"

	"github.com/legb78/mail-classification-agent/core/domain"
)

func TestKeywordClassify(t *testing.T) {
	k := NewKeywordClassifier(nil, nil,
		map[string][]string{
			"Technique":   {"bug", "erreur", "crash"},
			"Facturation": {"facture", "paiement"},
			"Support":     {"aide", "question"},
		},
		map[string][]string{
			"Critique": {"urgent", "bloquant"},
			"Haute":    {"important"},
			"Basse":    {"pas urgent"},
		})

	tests := []struct {
		name     string
		subject  string
		body     string
		category domain.Category
		priority domain.Priority
	}{
		{
			name:     "single category hit",
			subject:  "Facture introuvable",
			body:     "je ne trouve pas ma facture",
			category: domain.CategoryFacturation,
			priority: domain.PriorityMoyenne,
		},
		{
			name:     "most hits wins",
			subject:  "bug",
			body:     "erreur puis crash, et une question",
			category: domain.CategoryTechnique,
			priority: domain.PriorityMoyenne,
		},
		{
			name:     "tie broken by set order",
			subject:  "bug",
			body:     "une question",
			category: domain.CategoryTechnique, // Technique precedes Support in the set
			priority: domain.PriorityMoyenne,
		},
		{
			name:     "priority keywords",
			subject:  "urgent: serveur bloquant",
			body:     "",
			category: domain.CategoryAutre,
			priority: domain.PriorityCritique,
		},
		{
			name:     "zero hits lands on defaults",
			subject:  "bonjour",
			body:     "je vous ecris sans raison particuliere",
			category: domain.CategoryAutre,
			priority: domain.PriorityMoyenne,
		},
		{
			name:     "case insensitive",
			subject:  "URGENT",
			body:     "ERREUR dans le systeme",
			category: domain.CategoryTechnique,
			priority: domain.PriorityCritique,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.Classify(context.Background(), tt.subject, tt.body, "user@example.com")
			if got.Category != tt.category {
				t.Errorf("category = %q, want %q", got.Category, tt.category)
			}
			if got.Priority != tt.priority {
				t.Errorf("priority = %q, want %q", got.Priority, tt.priority)
			}
			if got.Confidence != 0.0 {
				t.Errorf("confidence = %v, want 0.0", got.Confidence)
			}
			if got.Reasoning != "" {
				t.Errorf("reasoning = %q, want empty", got.Reasoning)
			}
			if got.Source != domain.SourceFallback {
				t.Errorf("source = %q, want fallback", got.Source)
			}
		})
	}
}

func TestKeywordClassifierIgnoresUnknownTableKeys(t *testing.T) {
	k := NewKeywordClassifier(nil, nil,
		map[string][]string{"Nonsense": {"bug"}},
		nil)

	got := k.Classify(context.Background(), "bug", "bug bug", "u@e.com")
	if got.Category != domain.CategoryAutre {
		t.Errorf("category = %q, keywords under an out-of-set key must not score", got.Category)
	}
}
