package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.DedupBackend != "redis" {
		t.Errorf("DedupBackend = %q", cfg.DedupBackend)
	}
	if cfg.BatchSize != 10 || cfg.Concurrency != 4 {
		t.Errorf("BatchSize = %d, Concurrency = %d", cfg.BatchSize, cfg.Concurrency)
	}
	if cfg.BodyTruncateLen != 1000 {
		t.Errorf("BodyTruncateLen = %d", cfg.BodyTruncateLen)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if len(cfg.Categories) != 5 || cfg.Categories[0] != "Technique" {
		t.Errorf("Categories = %v", cfg.Categories)
	}
	if len(cfg.Priorities) != 4 || cfg.Priorities[0] != "Critique" {
		t.Errorf("Priorities = %v", cfg.Priorities)
	}
	if len(cfg.CategoryKeywords["Facturation"]) == 0 {
		t.Error("default category keyword table missing Facturation")
	}
	if len(cfg.PriorityKeywords["Critique"]) == 0 {
		t.Error("default priority keyword table missing Critique")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CLASSIFICATION_CATEGORIES", "Bug, Sales ,Other")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("POLL_INTERVAL_SEC", "120")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("IsProduction() = false")
	}
	want := []string{"Bug", "Sales", "Other"}
	if len(cfg.Categories) != len(want) {
		t.Fatalf("Categories = %v", cfg.Categories)
	}
	for i, c := range want {
		if cfg.Categories[i] != c {
			t.Errorf("Categories[%d] = %q, want %q", i, cfg.Categories[i], c)
		}
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.PollInterval != 120*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown dedup backend", "DEDUP_BACKEND", "cassandra"},
		{"zero batch size", "BATCH_SIZE", "0"},
		{"negative concurrency", "PIPELINE_CONCURRENCY", "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestKeywordMapParsing(t *testing.T) {
	t.Setenv("CATEGORY_KEYWORDS", "Technique:bug|crash, Facturation:facture|paiement")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.CategoryKeywords) != 2 {
		t.Fatalf("keyword table = %v", cfg.CategoryKeywords)
	}
	tech := cfg.CategoryKeywords["Technique"]
	if len(tech) != 2 || tech[0] != "bug" || tech[1] != "crash" {
		t.Errorf("Technique keywords = %v", tech)
	}
	fact := cfg.CategoryKeywords["Facturation"]
	if len(fact) != 2 || fact[0] != "facture" {
		t.Errorf("Facturation keywords = %v", fact)
	}
}

func TestKeywordMapFallsBackOnGarbage(t *testing.T) {
	// Entries without a colon are dropped; an empty result keeps defaults.
	t.Setenv("PRIORITY_KEYWORDS", "no-separator-here, another")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.PriorityKeywords["Critique"]) == 0 {
		t.Error("garbage keyword env did not fall back to defaults")
	}
}
