package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/legb78/mail-classification-agent/config"
	"github.com/legb78/mail-classification-agent/internal/bootstrap"
	"github.com/legb78/mail-classification-agent/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	mode := flag.String("mode", "daemon", "Run mode: daemon, once, api")
	dryRun := flag.Bool("dry-run", false, "Classify without writing tickets or ledger entries")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("mail-agent", "info", "development")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *dryRun {
		cfg.DryRun = true
	}

	log := logger.New("mail-agent", cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer cleanup()

	switch *mode {
	case "once":
		runOnce(ctx, deps, cfg.DryRun, log)
	case "daemon":
		runDaemon(ctx, cfg, deps, log)
	case "api":
		runAPI(ctx, cfg, deps, log)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

// runOnce executes a single cycle and exits non-zero when it fails.
func runOnce(ctx context.Context, deps *bootstrap.Dependencies, dryRun bool, log zerolog.Logger) {
	report, err := deps.Scheduler.RunOnce(ctx, dryRun)
	if err != nil {
		log.Error().Err(err).Msg("cycle failed")
		os.Exit(1)
	}
	log.Info().
		Str("cycle_id", report.CycleID).
		Int("created", report.Created()).
		Int("skipped", report.Skipped()).
		Int("failed", report.Failed()).
		Msg("cycle complete")
}

// runDaemon polls the mailbox on the configured interval and serves the
// admin API alongside.
func runDaemon(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies, log zerolog.Logger) {
	go deps.Scheduler.Start(ctx)
	runAPI(ctx, cfg, deps, log)
}

func runAPI(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies, log zerolog.Logger) {
	app := bootstrap.NewAPI(cfg, deps, log)

	go func() {
		<-ctx.Done()
		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("error during shutdown")
			}
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	addr := ":" + cfg.AdminPort
	log.Info().Str("addr", addr).Msg("starting admin API")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
