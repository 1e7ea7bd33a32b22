package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the explicit configuration object passed into construction.
// Nothing else in the agent reads the environment.
type Config struct {
	Environment string
	LogLevel    string

	// Admin API
	AdminPort      string
	AdminJWTSecret string

	// Mail source (Gmail)
	GmailCredentialsFile string
	GmailTokenFile       string
	GmailQuery           string
	MailMaxFetch         int

	// Classification provider (Groq, OpenAI-compatible)
	GroqAPIKey       string
	GroqBaseURL      string
	LLMModel         string
	LLMMaxTokens     int
	LLMTemperature   float64
	LLMTimeout       time.Duration
	LLMMaxRetries    int
	LLMRPS           float64
	LLMBurst         int
	BodyTruncateLen  int

	// Closed classification sets
	Categories []string
	Priorities []string

	// Fallback keyword rules: "Category:kw1|kw2,Category2:kw3" format.
	CategoryKeywords map[string][]string
	PriorityKeywords map[string][]string

	// Pipeline
	BatchSize   int
	Concurrency int
	DryRun      bool
	SinkTimeout time.Duration

	// Dedup ledger
	DedupBackend string // "redis" or "postgres"
	RedisURL     string
	DatabaseURL  string

	// Ticket sink (Google Sheets)
	SheetsCredentialsFile string
	SpreadsheetID         string
	SheetName             string

	// Report store (optional)
	MongoDBURL  string
	MongoDBName string

	// Notifications
	SlackWebhookURL  string
	TeamsWebhookURL  string
	NotifyEnabled    bool
	WebhookTimeout   time.Duration

	// Scheduler
	PollInterval time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AdminPort:      getEnv("ADMIN_PORT", "8080"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		GmailCredentialsFile: getEnv("GMAIL_CREDENTIALS_FILE", "credentials/gmail_credentials.json"),
		GmailTokenFile:       getEnv("GMAIL_TOKEN_FILE", "credentials/gmail_token.json"),
		GmailQuery:           getEnv("GMAIL_QUERY", "is:unread"),
		MailMaxFetch:         getEnvInt("MAIL_MAX_FETCH", 100),

		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:        getEnv("LLM_MODEL", "llama-3.1-70b-versatile"),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 500),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeout:      time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 30)) * time.Second,
		LLMMaxRetries:   getEnvInt("LLM_MAX_RETRIES", 1),
		LLMRPS:          getEnvFloat("LLM_RPS", 5),
		LLMBurst:        getEnvInt("LLM_BURST", 5),
		BodyTruncateLen: getEnvInt("BODY_TRUNCATE_LEN", 1000),

		Categories: getEnvSlice("CLASSIFICATION_CATEGORIES",
			[]string{"Technique", "Commercial", "Support", "Facturation", "Autre"}),
		Priorities: getEnvSlice("CLASSIFICATION_PRIORITIES",
			[]string{"Critique", "Haute", "Moyenne", "Basse"}),

		CategoryKeywords: getEnvKeywordMap("CATEGORY_KEYWORDS", defaultCategoryKeywords),
		PriorityKeywords: getEnvKeywordMap("PRIORITY_KEYWORDS", defaultPriorityKeywords),

		BatchSize:   getEnvInt("BATCH_SIZE", 10),
		Concurrency: getEnvInt("PIPELINE_CONCURRENCY", 4),
		DryRun:      getEnvBool("DRY_RUN", false),
		SinkTimeout: time.Duration(getEnvInt("SINK_TIMEOUT_SEC", 30)) * time.Second,

		DedupBackend: getEnv("DEDUP_BACKEND", "redis"),
		RedisURL:     getEnv("REDIS_URL", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", "credentials/sheets_credentials.json"),
		SpreadsheetID:         getEnv("SPREADSHEET_ID", ""),
		SheetName:             getEnv("SHEET_NAME", "Tickets"),

		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mail_agent"),

		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		TeamsWebhookURL: getEnv("TEAMS_WEBHOOK_URL", ""),
		NotifyEnabled:   getEnvBool("NOTIFICATION_ENABLED", true),
		WebhookTimeout:  time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SEC", 10)) * time.Second,

		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SEC", 60)) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("CLASSIFICATION_CATEGORIES must not be empty")
	}
	if len(c.Priorities) == 0 {
		return fmt.Errorf("CLASSIFICATION_PRIORITIES must not be empty")
	}
	switch c.DedupBackend {
	case "redis", "postgres":
	default:
		return fmt.Errorf("DEDUP_BACKEND must be redis or postgres, got %q", c.DedupBackend)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Default keyword rule tables for the fallback classifier. Keys must be
// members of the configured closed sets.
var defaultCategoryKeywords = map[string][]string{
	"Technique":   {"bug", "erreur", "probleme", "problème", "ne fonctionne pas", "crash", "serveur", "api", "technique"},
	"Commercial":  {"achat", "vente", "devis", "prix", "commande", "tarif"},
	"Support":     {"aide", "assistance", "question", "comment", "support"},
	"Facturation": {"facture", "paiement", "facturation", "invoice", "remboursement"},
}

var defaultPriorityKeywords = map[string][]string{
	"Critique": {"urgent", "critique", "bloquant", "immédiat", "immediat", "down", "panne"},
	"Haute":    {"important", "priorité", "priorite", "rapide", "dès que possible"},
	"Basse":    {"pas urgent", "quand possible", "anodin", "basse priorité"},
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// getEnvKeywordMap parses "Key:kw1|kw2,Key2:kw3" into a keyword table.
func getEnvKeywordMap(key string, defaultValue map[string][]string) map[string][]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	out := make(map[string][]string)
	for _, entry := range strings.Split(value, ",") {
		name, kws, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		var list []string
		for _, kw := range strings.Split(kws, "|") {
			if trimmed := strings.TrimSpace(kw); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		if name != "" && len(list) > 0 {
			out[name] = list
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
