package domain

import "strings"

// Category is a ticket category. The set of valid categories is closed and
// comes from configuration; values outside the set are rejected by
// CategorySet.Normalize.
type Category string

// Priority is a ticket priority level, also a configurable closed set.
type Priority string

// Default closed sets. These mirror the support desk's sheet tabs and can
// be overridden through configuration.
const (
	CategoryTechnique   Category = "Technique"
	CategoryCommercial  Category = "Commercial"
	CategorySupport     Category = "Support"
	CategoryFacturation Category = "Facturation"
	CategoryAutre       Category = "Autre"

	PriorityCritique Priority = "Critique"
	PriorityHaute    Priority = "Haute"
	PriorityMoyenne  Priority = "Moyenne"
	PriorityBasse    Priority = "Basse"
)

// ClassificationSource records which path produced a Classification.
type ClassificationSource string

const (
	SourceProvider ClassificationSource = "provider"
	SourceFallback ClassificationSource = "fallback"
)

// Classification is the (category, priority, confidence, reasoning) tuple
// assigned to one inbound message. Confidence is always within [0,1].
type Classification struct {
	Category   Category
	Priority   Priority
	Confidence float64
	Reasoning  string
	Source     ClassificationSource
}

// ExtractionDigest is the short structured summary produced by the
// extraction engine. Every field is optional: extraction never blocks
// ticket creation, and absent fields are simply omitted downstream.
type ExtractionDigest struct {
	MainIssue        string `json:"main_issue,omitempty"`
	ProductOrService string `json:"product_or_service,omitempty"`
	ReferenceNumber  string `json:"reference_number,omitempty"`
}

// Empty reports whether the digest carries no information at all.
func (d ExtractionDigest) Empty() bool {
	return d.MainIssue == "" && d.ProductOrService == "" && d.ReferenceNumber == ""
}

// CategorySet is the configured closed set of categories, in tie-break
// order: when the keyword fallback scores two categories equally, the one
// listed first wins.
type CategorySet []Category

// DefaultCategories returns the default closed category set.
func DefaultCategories() CategorySet {
	return CategorySet{
		CategoryTechnique,
		CategoryCommercial,
		CategorySupport,
		CategoryFacturation,
		CategoryAutre,
	}
}

// Contains reports closed-set membership.
func (s CategorySet) Contains(c Category) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}

// categorySynonyms maps common provider spellings onto canonical category
// names before the closed-set check.
var categorySynonyms = map[string]Category{
	"technique":   CategoryTechnique,
	"technical":   CategoryTechnique,
	"tech":        CategoryTechnique,
	"commercial":  CategoryCommercial,
	"sales":       CategoryCommercial,
	"support":     CategorySupport,
	"facturation": CategoryFacturation,
	"billing":     CategoryFacturation,
	"invoice":     CategoryFacturation,
	"autre":       CategoryAutre,
	"other":       CategoryAutre,
	"general":     CategoryAutre,
}

// Normalize maps a raw provider value onto a member of the set. The second
// return value is false when the value cannot be mapped; callers treat
// that as a parse failure.
func (s CategorySet) Normalize(raw string) (Category, bool) {
	trimmed := strings.TrimSpace(raw)
	if s.Contains(Category(trimmed)) {
		return Category(trimmed), true
	}

	lower := strings.ToLower(trimmed)
	if c, ok := categorySynonyms[lower]; ok && s.Contains(c) {
		return c, true
	}

	if lower == "" {
		return "", false
	}

	// Last chance: substring match against the configured set, both ways.
	for _, c := range s {
		cl := strings.ToLower(string(c))
		if strings.Contains(lower, cl) || strings.Contains(cl, lower) {
			return c, true
		}
	}
	return "", false
}

// PrioritySet is the configured closed set of priorities, ordered from
// most to least urgent.
type PrioritySet []Priority

// DefaultPriorities returns the default closed priority set.
func DefaultPriorities() PrioritySet {
	return PrioritySet{PriorityCritique, PriorityHaute, PriorityMoyenne, PriorityBasse}
}

// Contains reports closed-set membership.
func (s PrioritySet) Contains(p Priority) bool {
	for _, v := range s {
		if v == p {
			return true
		}
	}
	return false
}

var prioritySynonyms = map[string]Priority{
	"critique": PriorityCritique,
	"critical": PriorityCritique,
	"urgent":   PriorityCritique,
	"haute":    PriorityHaute,
	"high":     PriorityHaute,
	"moyenne":  PriorityMoyenne,
	"medium":   PriorityMoyenne,
	"normale":  PriorityMoyenne,
	"normal":   PriorityMoyenne,
	"basse":    PriorityBasse,
	"low":      PriorityBasse,
}

// Normalize maps a raw provider value onto a member of the set; false when
// the value stays outside the set.
func (s PrioritySet) Normalize(raw string) (Priority, bool) {
	trimmed := strings.TrimSpace(raw)
	if s.Contains(Priority(trimmed)) {
		return Priority(trimmed), true
	}

	lower := strings.ToLower(trimmed)
	if p, ok := prioritySynonyms[lower]; ok && s.Contains(p) {
		return p, true
	}

	if lower == "" {
		return "", false
	}

	for _, p := range s {
		pl := strings.ToLower(string(p))
		if strings.Contains(lower, pl) || strings.Contains(pl, lower) {
			return p, true
		}
	}
	return "", false
}

// Highest returns the most urgent member of the set.
func (s PrioritySet) Highest() Priority {
	if len(s) == 0 {
		return PriorityCritique
	}
	return s[0]
}
