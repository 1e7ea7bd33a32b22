// Package pipeline orchestrates one ingestion cycle: normalize, dedup
// check, classify+extract, emit, report. Per-message trouble never
// interrupts sibling messages; only infrastructure failures (the ledger
// going away) abort a cycle.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
	"github.com/legb78/mail-classification-agent/pkg/metrics"
	"github.com/legb78/mail-classification-agent/pkg/ticketid"
)

// Normalizer turns a raw message into its canonical form. Total.
type Normalizer interface {
	Normalize(raw out.RawMessage) *domain.InboundMessage
}

// Classifier assigns the classification tuple. Total.
type Classifier interface {
	Classify(ctx context.Context, subject, body, senderEmail string) domain.Classification
}

// Extractor produces the ticket digest. Total.
type Extractor interface {
	Extract(ctx context.Context, subject, body string) domain.ExtractionDigest
}

// Config bounds one pipeline instance.
type Config struct {
	Concurrency      int             // parallel per-message workers (default: 4)
	SinkTimeout      time.Duration   // per sink write (default: 30s)
	CriticalPriority domain.Priority // priority that triggers a notification
}

// Options are per-run knobs.
type Options struct {
	DryRun       bool
	MaxBatchSize int // 0 = no bound; excess messages wait for the next cycle
}

// Deps holds the pipeline's collaborators. Notifier and Archive are
// optional; everything else is required.
type Deps struct {
	Normalizer Normalizer
	Classifier Classifier
	Extractor  Extractor
	Ledger     out.DedupLedger
	Sink       out.TicketSink
	Notifier   out.Notifier
	Archive    out.TicketRepository
	TicketIDs  *ticketid.Generator
}

// Pipeline is not re-entrant against the same ledger: callers serialize
// cycles, one active run at a time.
type Pipeline struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time

	classifyLat *metrics.LatencyTracker
	sinkLat     *metrics.LatencyTracker
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 30 * time.Second
	}
	if deps.TicketIDs == nil {
		deps.TicketIDs = ticketid.NewGenerator()
	}
	return &Pipeline{
		deps:        deps,
		cfg:         cfg,
		log:         log.With().Str("component", "pipeline").Logger(),
		now:         time.Now,
		classifyLat: metrics.NewLatencyTracker(1000),
		sinkLat:     metrics.NewLatencyTracker(1000),
	}
}

// Stats reports per-stage latency over the recent window, for the admin
// API.
type Stats struct {
	Classify metrics.Snapshot `json:"classify"`
	Sink     metrics.Snapshot `json:"sink"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Classify: p.classifyLat.Stats(),
		Sink:     p.sinkLat.Stats(),
	}
}

// Run processes one batch. Outcomes preserve arrival order. The returned
// report is valid even when err is non-nil: on an infrastructure failure
// it covers the messages processed before the abort, so the caller can
// still acknowledge those.
func (p *Pipeline) Run(ctx context.Context, batch []out.RawMessage, opts Options) (*domain.CycleReport, error) {
	report := &domain.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: p.now().UTC(),
		DryRun:    opts.DryRun,
	}
	log := p.log.With().Str("cycle_id", report.CycleID).Bool("dry_run", opts.DryRun).Logger()

	if opts.MaxBatchSize > 0 && len(batch) > opts.MaxBatchSize {
		log.Info().Int("batch", len(batch)).Int("bound", opts.MaxBatchSize).
			Msg("bounding batch, remainder stays for the next cycle")
		batch = batch[:opts.MaxBatchSize]
	}

	outcomes := make([]*domain.MessageOutcome, len(batch))

	// In-flight identity claims. The ledger only knows finished messages,
	// so two copies of one message inside a batch would both pass the Has
	// check; the first worker to claim an ID wins, later copies are
	// duplicates.
	var (
		claimMu sync.Mutex
		claimed = make(map[string]struct{})
	)
	claim := func(messageID string) bool {
		claimMu.Lock()
		defer claimMu.Unlock()
		if _, ok := claimed[messageID]; ok {
			return false
		}
		claimed[messageID] = struct{}{}
		return true
	}

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
			cancel() // stop dispatching; in-flight messages finish
		}
		fatalMu.Unlock()
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	for i, raw := range batch {
		// Cooperative stop: checked between messages, never mid-message.
		if workCtx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, raw out.RawMessage) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := p.process(workCtx, raw, opts.DryRun, claim, log)
			if err != nil {
				setFatal(err)
				return
			}
			outcomes[idx] = &outcome
		}(i, raw)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o != nil {
			report.Outcomes = append(report.Outcomes, *o)
		}
	}
	report.FinishedAt = p.now().UTC()

	if fatalErr != nil {
		log.Error().Err(fatalErr).Msg("cycle aborted")
		p.notify(domain.Event{Kind: domain.EventCycleFailed, Err: fatalErr})
		return report, fatalErr
	}

	log.Info().
		Int("created", report.Created()).
		Int("skipped", report.Skipped()).
		Int("failed", report.Failed()).
		Msg("cycle finished")
	return report, nil
}

// process handles one message end to end. The returned error is non-nil
// only for infrastructure failures that must abort the cycle.
func (p *Pipeline) process(ctx context.Context, raw out.RawMessage, dryRun bool, claim func(string) bool, log zerolog.Logger) (domain.MessageOutcome, error) {
	msg := p.deps.Normalizer.Normalize(raw)

	// Claim the identity before the ledger check so a second copy in the
	// same batch cannot race past Has while this one is still classifying.
	if !claim(msg.MessageID) {
		log.Debug().Str("message_id", msg.MessageID).Msg("duplicate within batch, skipping")
		return domain.MessageOutcome{MessageID: msg.MessageID, Kind: domain.OutcomeSkippedDuplicate}, nil
	}

	seen, err := p.deps.Ledger.Has(ctx, msg.MessageID)
	if err != nil {
		return domain.MessageOutcome{}, apperr.Fatal(apperr.CodeLedgerError,
			fmt.Sprintf("dedup ledger unreachable for message %s", msg.MessageID), err)
	}
	if seen {
		log.Debug().Str("message_id", msg.MessageID).Msg("duplicate, skipping")
		return domain.MessageOutcome{MessageID: msg.MessageID, Kind: domain.OutcomeSkippedDuplicate}, nil
	}

	// Both calls are total: classifier trouble degrades to the fallback
	// path inside the engine, extraction trouble to an empty digest.
	classifyStart := time.Now()
	classification := p.deps.Classifier.Classify(ctx, msg.Subject, msg.BodyText, msg.SenderEmail)
	p.classifyLat.Record(time.Since(classifyStart))
	digest := p.deps.Extractor.Extract(ctx, msg.Subject, msg.BodyText)

	ticket := &domain.TicketRecord{
		ID:          p.deps.TicketIDs.Next(),
		MessageID:   msg.MessageID,
		ReceivedAt:  msg.ReceivedAt,
		SenderName:  msg.SenderName,
		SenderEmail: msg.SenderEmail,
		Subject:     msg.Subject,
		Category:    classification.Category,
		Priority:    classification.Priority,
		Status:      domain.StatusNew,
		Description: domain.BuildDescription(msg.BodyText, digest),
	}

	outcome := domain.MessageOutcome{
		MessageID: msg.MessageID,
		TicketID:  ticket.ID,
		Category:  ticket.Category,
		Priority:  ticket.Priority,
	}

	if dryRun {
		// Dry runs are fully side-effect-free: no sink write, no ledger
		// entry, no notifications.
		outcome.Kind = domain.OutcomeWouldCreate
		return outcome, nil
	}

	sinkCtx, cancel := context.WithTimeout(ctx, p.cfg.SinkTimeout)
	sinkStart := time.Now()
	ticketID, err := p.deps.Sink.Create(sinkCtx, ticket)
	p.sinkLat.Record(time.Since(sinkStart))
	cancel()
	if err != nil {
		// The ledger stays untouched either way, so a later cycle retries
		// the message; the kind only tells operators whether that retry
		// can work.
		if apperr.IsPermanent(err) {
			outcome.Kind = domain.OutcomeFailedPermanent
		} else {
			outcome.Kind = domain.OutcomeFailedRetryable
		}
		outcome.Error = err.Error()
		log.Warn().Err(err).Str("message_id", msg.MessageID).Str("kind", string(outcome.Kind)).
			Msg("sink rejected ticket")
		return outcome, nil
	}
	if ticketID != "" {
		ticket.ID = ticketID
		outcome.TicketID = ticketID
	}

	// Durability precedes acknowledgment: the ledger entry must land
	// before the message is reported Created. A crash in between re-sends
	// a duplicate on restart, which is acceptable; a lost entry is not.
	if err := p.deps.Ledger.Record(ctx, msg.MessageID, ticket.ID, p.now().UTC()); err != nil {
		outcome.Kind = domain.OutcomeFailedRetryable
		outcome.Error = err.Error()
		log.Error().Err(err).Str("message_id", msg.MessageID).Msg("ledger record failed after sink write")
		return outcome, nil
	}

	outcome.Kind = domain.OutcomeCreated
	log.Info().Str("message_id", msg.MessageID).Str("ticket_id", ticket.ID).
		Str("category", string(ticket.Category)).Str("priority", string(ticket.Priority)).
		Str("classifier", string(classification.Source)).
		Msg("ticket created")

	p.archive(ctx, ticket, log)

	if p.cfg.CriticalPriority != "" && ticket.Priority == p.cfg.CriticalPriority {
		p.notify(domain.Event{Kind: domain.EventTicketCreatedCritical, Ticket: ticket})
	}

	return outcome, nil
}

// archive stores the ticket locally for the admin API. Best-effort.
func (p *Pipeline) archive(ctx context.Context, ticket *domain.TicketRecord, log zerolog.Logger) {
	if p.deps.Archive == nil {
		return
	}
	if err := p.deps.Archive.Insert(ctx, ticket); err != nil {
		log.Warn().Err(err).Str("ticket_id", ticket.ID).Msg("ticket archive write failed")
	}
}

// notify delivers an event best-effort: failures are logged, never
// propagated.
func (p *Pipeline) notify(event domain.Event) {
	if p.deps.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.deps.Notifier.Notify(ctx, event); err != nil {
		p.log.Warn().Err(err).Str("event", string(event.Kind)).Msg("notification delivery failed")
	}
}
