// Package bootstrap wires configuration into the running dependency
// graph: stores, adapters, engines, pipeline and scheduler.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/legb78/mail-classification-agent/adapter/out/dedup"
	"github.com/legb78/mail-classification-agent/adapter/out/llm"
	gmailsource "github.com/legb78/mail-classification-agent/adapter/out/mail"
	"github.com/legb78/mail-classification-agent/adapter/out/mongodb"
	"github.com/legb78/mail-classification-agent/adapter/out/notify"
	"github.com/legb78/mail-classification-agent/adapter/out/persistence"
	"github.com/legb78/mail-classification-agent/adapter/out/sheets"
	"github.com/legb78/mail-classification-agent/config"
	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/core/service/classify"
	"github.com/legb78/mail-classification-agent/core/service/extract"
	"github.com/legb78/mail-classification-agent/core/service/normalize"
	"github.com/legb78/mail-classification-agent/core/service/pipeline"
	"github.com/legb78/mail-classification-agent/infra/database"
	"github.com/legb78/mail-classification-agent/internal/scheduler"
)

// Dependencies is the wired dependency graph.
type Dependencies struct {
	Config *config.Config

	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	Ledger       out.DedupLedger
	LedgerReader out.LedgerReader
	Source       out.MailSource
	Sink         out.TicketSink
	Notifier     out.Notifier
	TicketRepo   out.TicketRepository
	ReportRepo   out.ReportRepository

	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
}

// NewDependencies builds the graph. The returned cleanup closes every
// connection it opened, last-opened first.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Dedup ledger: the one store the agent cannot run without.
	switch cfg.DedupBackend {
	case "redis":
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })

		ledger := dedup.NewRedisLedger(redisClient, 0)
		deps.Ledger = ledger
		deps.LedgerReader = ledger
		log.Info().Msg("redis dedup ledger connected")

	case "postgres":
		pool, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		deps.DB = pool
		cleanups = append(cleanups, func() { pool.Close() })

		ledger := dedup.NewPostgresLedger(pool)
		if err := ledger.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Ledger = ledger
		deps.LedgerReader = ledger
		log.Info().Msg("postgres dedup ledger connected")
	}

	// Ticket archive (sqlx over pgx stdlib), optional.
	if cfg.DatabaseURL != "" {
		sqlxURL := cfg.DatabaseURL
		if strings.Contains(sqlxURL, "?") {
			sqlxURL += "&default_query_exec_mode=simple_protocol"
		} else {
			sqlxURL += "?default_query_exec_mode=simple_protocol"
		}
		sqlDB, err := sqlx.Connect("pgx", sqlxURL)
		if err != nil {
			log.Warn().Err(err).Msg("ticket archive unavailable, continuing without it")
		} else {
			sqlDB.SetMaxOpenConns(10)
			sqlDB.SetMaxIdleConns(4)
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
			deps.SQLDB = sqlDB
			cleanups = append(cleanups, func() { sqlDB.Close() })

			ticketRepo := persistence.NewTicketAdapter(sqlDB)
			if err := ticketRepo.EnsureSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("ticket archive schema not created")
			} else {
				deps.TicketRepo = ticketRepo
				log.Info().Msg("ticket archive connected")
			}
		}
	}

	// Report store (MongoDB), optional.
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			log.Warn().Err(err).Msg("report store unavailable, continuing without it")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			reportRepo := mongodb.NewReportAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := reportRepo.EnsureIndexes(ctx); err != nil {
				log.Warn().Err(err).Msg("report indexes not created")
			}
			deps.ReportRepo = reportRepo
			log.Info().Msg("report store connected")
		}
	}

	// Mail source.
	source, err := gmailsource.NewGmailSource(ctx, gmailsource.Config{
		CredentialsFile: cfg.GmailCredentialsFile,
		TokenFile:       cfg.GmailTokenFile,
		Query:           cfg.GmailQuery,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Source = source

	// Ticket sink.
	sink, err := sheets.NewSheetsSink(ctx, sheets.Config{
		CredentialsFile: cfg.SheetsCredentialsFile,
		SpreadsheetID:   cfg.SpreadsheetID,
		SheetName:       cfg.SheetName,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := sink.EnsureHeader(ctx); err != nil {
		log.Warn().Err(err).Msg("sheet header not verified")
	}
	deps.Sink = sink

	// Notifications, optional.
	if cfg.NotifyEnabled && (cfg.SlackWebhookURL != "" || cfg.TeamsWebhookURL != "") {
		deps.Notifier = notify.NewWebhookNotifier(notify.Config{
			SlackWebhookURL: cfg.SlackWebhookURL,
			TeamsWebhookURL: cfg.TeamsWebhookURL,
			Timeout:         cfg.WebhookTimeout,
		})
	}

	// Classification sets.
	categories := make(domain.CategorySet, len(cfg.Categories))
	for i, c := range cfg.Categories {
		categories[i] = domain.Category(c)
	}
	priorities := make(domain.PrioritySet, len(cfg.Priorities))
	for i, p := range cfg.Priorities {
		priorities[i] = domain.Priority(p)
	}

	// Completion provider. Missing API key means keyword-only operation.
	var provider out.CompletionProvider
	if cfg.GroqAPIKey != "" {
		provider = llm.NewGroqAdapter(llm.Config{
			APIKey:            cfg.GroqAPIKey,
			BaseURL:           cfg.GroqBaseURL,
			Model:             cfg.LLMModel,
			MaxTokens:         cfg.LLMMaxTokens,
			Temperature:       cfg.LLMTemperature,
			RequestsPerSecond: cfg.LLMRPS,
			Burst:             cfg.LLMBurst,
		})
	} else {
		log.Warn().Msg("no provider API key, classification runs on keywords only")
	}

	fallback := classify.NewKeywordClassifier(categories, priorities,
		cfg.CategoryKeywords, cfg.PriorityKeywords)
	classifier := classify.NewEngine(provider, fallback, classify.Config{
		Categories:      categories,
		Priorities:      priorities,
		BodyTruncateLen: cfg.BodyTruncateLen,
		Timeout:         cfg.LLMTimeout,
		MaxRetries:      cfg.LLMMaxRetries,
	}, log)
	extractor := extract.New(provider, extract.Config{
		Timeout: cfg.LLMTimeout,
	}, log)

	deps.Pipeline = pipeline.New(pipeline.Deps{
		Normalizer: normalize.New(),
		Classifier: classifier,
		Extractor:  extractor,
		Ledger:     deps.Ledger,
		Sink:       deps.Sink,
		Notifier:   deps.Notifier,
		Archive:    deps.TicketRepo,
	}, pipeline.Config{
		Concurrency:      cfg.Concurrency,
		SinkTimeout:      cfg.SinkTimeout,
		CriticalPriority: priorities.Highest(),
	}, log)

	deps.Scheduler = scheduler.New(deps.Source, deps.Pipeline, deps.ReportRepo, deps.Notifier,
		scheduler.Config{
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
			DryRun:       cfg.DryRun,
		}, log)

	return deps, cleanup, nil
}
