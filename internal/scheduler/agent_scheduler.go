// Package scheduler drives ingestion cycles: one at a time, either on a
// polling interval or on demand. It owns the source-side acknowledgment:
// a message is marked processed only after its cycle outcome says the
// ledger has it covered.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/core/service/pipeline"
)

// Runner is the pipeline surface the scheduler drives.
type Runner interface {
	Run(ctx context.Context, batch []out.RawMessage, opts pipeline.Options) (*domain.CycleReport, error)
}

// Config bounds the scheduler.
type Config struct {
	PollInterval time.Duration // default 60s
	BatchSize    int           // messages fetched per cycle
	DryRun       bool          // applies to every cycle this scheduler starts
}

// Scheduler serializes cycles: a tick that fires while a cycle is still
// running is skipped, never queued.
type Scheduler struct {
	source   out.MailSource
	runner   Runner
	reports  out.ReportRepository
	notifier out.Notifier
	cfg      Config
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler. Reports and notifier are optional.
func New(source out.MailSource, runner Runner, reports out.ReportRepository, notifier out.Notifier, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Scheduler{
		source:   source,
		runner:   runner,
		reports:  reports,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start blocks, running a cycle every PollInterval until ctx is
// cancelled. The first cycle fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.cfg.PollInterval).Bool("dry_run", s.cfg.DryRun).
		Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx, s.cfg.DryRun); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("cycle failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. Concurrent calls beyond the first
// return ErrCycleInProgress without touching the mailbox.
func (s *Scheduler) RunOnce(ctx context.Context, dryRun bool) (*domain.CycleReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	batch, err := s.source.Fetch(ctx, s.cfg.BatchSize)
	if err != nil {
		s.notifyFailure(err)
		return nil, err
	}
	if len(batch) == 0 {
		s.log.Debug().Msg("no messages to process")
		return &domain.CycleReport{DryRun: dryRun}, nil
	}

	report, runErr := s.runner.Run(ctx, batch, pipeline.Options{
		DryRun:       dryRun,
		MaxBatchSize: s.cfg.BatchSize,
	})

	// Even an aborted cycle carries outcomes for the messages it got
	// through; acknowledge and persist those before surfacing the error.
	if report != nil {
		s.acknowledge(ctx, report)
		s.saveReport(report)
	}
	return report, runErr
}

// acknowledge marks messages whose ticket emission is settled: Created
// means the ledger has the entry, Skipped means it already had one.
// Failed messages stay unacknowledged so a later cycle retries them, and
// dry-run outcomes are never acknowledged at all.
func (s *Scheduler) acknowledge(ctx context.Context, report *domain.CycleReport) {
	if report.DryRun {
		return
	}
	for _, o := range report.Outcomes {
		switch o.Kind {
		case domain.OutcomeCreated, domain.OutcomeSkippedDuplicate:
			if err := s.source.MarkProcessed(ctx, o.MessageID); err != nil {
				// The ledger entry makes the re-fetch harmless: it comes
				// back Skipped and gets another mark attempt.
				s.log.Warn().Err(err).Str("message_id", o.MessageID).
					Msg("failed to mark message processed")
			}
		}
	}
}

func (s *Scheduler) saveReport(report *domain.CycleReport) {
	if s.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.reports.Save(ctx, report); err != nil {
		s.log.Warn().Err(err).Str("cycle_id", report.CycleID).Msg("failed to save cycle report")
	}
}

func (s *Scheduler) notifyFailure(err error) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if nerr := s.notifier.Notify(ctx, domain.Event{Kind: domain.EventCycleFailed, Err: err}); nerr != nil {
		s.log.Warn().Err(nerr).Msg("failure notification not delivered")
	}
}
