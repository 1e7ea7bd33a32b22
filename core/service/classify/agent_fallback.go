package classify

import (
	"context"
	"strings"

	"github.com/legb78/mail-classification-agent/core/domain"
)

// KeywordClassifier is the deterministic, offline classification path:
// case-insensitive keyword scoring over subject+body against configured
// per-category and per-priority keyword lists. It carries confidence 0.0
// and an empty reasoning so downstream consumers can tell it apart from a
// provider result.
type KeywordClassifier struct {
	categories       domain.CategorySet
	priorities       domain.PrioritySet
	categoryKeywords map[domain.Category][]string
	priorityKeywords map[domain.Priority][]string
	defaultCategory  domain.Category
	defaultPriority  domain.Priority
}

// NewKeywordClassifier builds the fallback classifier. Keyword table keys
// outside the closed sets are ignored.
func NewKeywordClassifier(categories domain.CategorySet, priorities domain.PrioritySet,
	categoryKeywords map[string][]string, priorityKeywords map[string][]string) *KeywordClassifier {

	if len(categories) == 0 {
		categories = domain.DefaultCategories()
	}
	if len(priorities) == 0 {
		priorities = domain.DefaultPriorities()
	}

	ck := make(map[domain.Category][]string, len(categoryKeywords))
	for name, kws := range categoryKeywords {
		if c, ok := categories.Normalize(name); ok {
			ck[c] = lowerAll(kws)
		}
	}
	pk := make(map[domain.Priority][]string, len(priorityKeywords))
	for name, kws := range priorityKeywords {
		if p, ok := priorities.Normalize(name); ok {
			pk[p] = lowerAll(kws)
		}
	}

	return &KeywordClassifier{
		categories:       categories,
		priorities:       priorities,
		categoryKeywords: ck,
		priorityKeywords: pk,
		defaultCategory:  pickDefaultCategory(categories),
		defaultPriority:  pickDefaultPriority(priorities),
	}
}

// Classify scores keyword hits. The category with the most hits wins, ties
// broken by the configured set order; zero hits anywhere falls to the
// default (catch-all) members.
func (k *KeywordClassifier) Classify(_ context.Context, subject, body, _ string) domain.Classification {
	text := strings.ToLower(subject + " " + body)

	category := k.defaultCategory
	bestHits := 0
	for _, c := range k.categories {
		hits := countHits(text, k.categoryKeywords[c])
		if hits > bestHits {
			bestHits = hits
			category = c
		}
	}

	priority := k.defaultPriority
	bestHits = 0
	for _, p := range k.priorities {
		hits := countHits(text, k.priorityKeywords[p])
		if hits > bestHits {
			bestHits = hits
			priority = p
		}
	}

	return domain.Classification{
		Category:   category,
		Priority:   priority,
		Confidence: 0.0,
		Reasoning:  "",
		Source:     domain.SourceFallback,
	}
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// pickDefaultCategory prefers the set's explicit catch-all, otherwise the
// last member.
func pickDefaultCategory(set domain.CategorySet) domain.Category {
	if set.Contains(domain.CategoryAutre) {
		return domain.CategoryAutre
	}
	return set[len(set)-1]
}

// pickDefaultPriority prefers the conventional middle priority, otherwise
// the least urgent member.
func pickDefaultPriority(set domain.PrioritySet) domain.Priority {
	if set.Contains(domain.PriorityMoyenne) {
		return domain.PriorityMoyenne
	}
	return set[len(set)-1]
}
