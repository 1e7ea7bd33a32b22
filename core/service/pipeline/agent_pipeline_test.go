package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
	"github.com/legb78/mail-classification-agent/pkg/logger"
)

// fakeNormalizer maps the raw ID straight onto the message identity.
type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(raw out.RawMessage) *domain.InboundMessage {
	return &domain.InboundMessage{
		MessageID:   raw.ID,
		SenderEmail: "user@example.com",
		Subject:     "subject " + raw.ID,
		BodyText:    string(raw.Raw),
		ReceivedAt:  raw.FetchedAt,
	}
}

type fakeClassifier struct {
	priority domain.Priority
	delay    time.Duration
}

func (f fakeClassifier) Classify(context.Context, string, string, string) domain.Classification {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	priority := f.priority
	if priority == "" {
		priority = domain.PriorityMoyenne
	}
	return domain.Classification{
		Category:   domain.CategorySupport,
		Priority:   priority,
		Confidence: 0.9,
		Source:     domain.SourceProvider,
	}
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(context.Context, string, string) domain.ExtractionDigest {
	return domain.ExtractionDigest{}
}

// memLedger is an in-memory ledger with scriptable failures.
type memLedger struct {
	mu        sync.Mutex
	seen      map[string]string
	hasErr    error
	recordErr error
}

func newMemLedger() *memLedger {
	return &memLedger{seen: make(map[string]string)}
}

func (l *memLedger) Has(_ context.Context, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasErr != nil {
		return false, l.hasErr
	}
	_, ok := l.seen[messageID]
	return ok, nil
}

func (l *memLedger) Record(_ context.Context, messageID, ticketID string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if _, ok := l.seen[messageID]; !ok {
		l.seen[messageID] = ticketID
	}
	return nil
}

func (l *memLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// memSink counts creations and fails on demand.
type memSink struct {
	mu      sync.Mutex
	created []string
	err     error
	echoID  string
}

func (s *memSink) Create(_ context.Context, record *domain.TicketRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.created = append(s.created, record.MessageID)
	if s.echoID != "" {
		return s.echoID, nil
	}
	return record.ID, nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type memNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *memNotifier) Notify(_ context.Context, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *memNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]domain.EventKind, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func batch(ids ...string) []out.RawMessage {
	msgs := make([]out.RawMessage, len(ids))
	for i, id := range ids {
		msgs[i] = out.RawMessage{ID: id, Raw: []byte("body of " + id), FetchedAt: time.Now()}
	}
	return msgs
}

func newTestPipeline(ledger *memLedger, sink *memSink, notifier *memNotifier) *Pipeline {
	deps := Deps{
		Normalizer: fakeNormalizer{},
		Classifier: fakeClassifier{},
		Extractor:  fakeExtractor{},
		Ledger:     ledger,
		Sink:       sink,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return New(deps, Config{Concurrency: 3, CriticalPriority: domain.PriorityCritique}, logger.Nop())
}

func TestRunCreatesTickets(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{}
	p := newTestPipeline(ledger, sink, nil)

	report, err := p.Run(context.Background(), batch("m1", "m2", "m3"), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created() != 3 {
		t.Errorf("created = %d, want 3", report.Created())
	}
	if sink.count() != 3 {
		t.Errorf("sink writes = %d, want 3", sink.count())
	}
	if ledger.size() != 3 {
		t.Errorf("ledger entries = %d, want 3", ledger.size())
	}
	for _, o := range report.Outcomes {
		if !strings.HasPrefix(o.TicketID, "TKT-") {
			t.Errorf("ticket ID %q missing TKT- prefix", o.TicketID)
		}
		if o.Category != domain.CategorySupport {
			t.Errorf("outcome category = %q", o.Category)
		}
	}
}

func TestRunPreservesArrivalOrder(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	p := newTestPipeline(newMemLedger(), &memSink{}, nil)

	report, err := p.Run(context.Background(), batch(ids...), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Outcomes) != len(ids) {
		t.Fatalf("outcomes = %d, want %d", len(report.Outcomes), len(ids))
	}
	for i, o := range report.Outcomes {
		if o.MessageID != ids[i] {
			t.Errorf("outcome[%d] = %q, want %q", i, o.MessageID, ids[i])
		}
	}
}

func TestRunSkipsDuplicatesOnSecondRun(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{}
	p := newTestPipeline(ledger, sink, nil)
	msgs := batch("m1", "m2")

	if _, err := p.Run(context.Background(), msgs, Options{}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := p.Run(context.Background(), msgs, Options{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if report.Skipped() != 2 || report.Created() != 0 {
		t.Errorf("second run: created=%d skipped=%d, want 0/2", report.Created(), report.Skipped())
	}
	if sink.count() != 2 {
		t.Errorf("sink writes = %d across both runs, want 2", sink.count())
	}
}

func TestRunDeduplicatesWithinBatch(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{}
	// A slow classifier holds both copies between the ledger check and the
	// ledger write, so only the in-flight claim can separate them.
	p := New(Deps{
		Normalizer: fakeNormalizer{},
		Classifier: fakeClassifier{delay: 50 * time.Millisecond},
		Extractor:  fakeExtractor{},
		Ledger:     ledger,
		Sink:       sink,
	}, Config{Concurrency: 4}, logger.Nop())

	report, err := p.Run(context.Background(), batch("dup", "dup"), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created() != 1 {
		t.Errorf("created = %d, want exactly 1 ticket for one message identity", report.Created())
	}
	if report.Skipped() != 1 {
		t.Errorf("skipped = %d, want the second copy reported duplicate", report.Skipped())
	}
	if sink.count() != 1 {
		t.Errorf("sink writes = %d, want 1", sink.count())
	}
	if ledger.size() != 1 {
		t.Errorf("ledger entries = %d, want 1", ledger.size())
	}
}

func TestRunDryRunHasNoSideEffects(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{}
	notifier := &memNotifier{}
	p := newTestPipeline(ledger, sink, notifier)

	report, err := p.Run(context.Background(), batch("m1", "m2"), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := report.Count(domain.OutcomeWouldCreate); n != 2 {
		t.Errorf("would_create = %d, want 2", n)
	}
	if sink.count() != 0 {
		t.Errorf("dry run wrote %d tickets to the sink", sink.count())
	}
	if ledger.size() != 0 {
		t.Errorf("dry run recorded %d ledger entries", ledger.size())
	}
	if len(notifier.kinds()) != 0 {
		t.Errorf("dry run sent %d notifications", len(notifier.kinds()))
	}
	if !report.DryRun {
		t.Error("report not flagged as dry run")
	}
}

func TestRunDryRunStillReportsDuplicates(t *testing.T) {
	ledger := newMemLedger()
	p := newTestPipeline(ledger, &memSink{}, nil)
	msgs := batch("m1")

	if _, err := p.Run(context.Background(), msgs, Options{}); err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), msgs, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped() != 1 {
		t.Errorf("dry run skipped = %d, want 1", report.Skipped())
	}
}

func TestRunTransientSinkFailure(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{err: apperr.Transient(apperr.CodeSinkError, "sheets unavailable", nil)}
	p := newTestPipeline(ledger, sink, nil)

	report, err := p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, per-message sink trouble must not abort", err)
	}
	if n := report.Count(domain.OutcomeFailedRetryable); n != 1 {
		t.Errorf("failed_retryable = %d, want 1", n)
	}
	if ledger.size() != 0 {
		t.Error("failed message must not be recorded in the ledger")
	}

	// The next cycle retries and succeeds.
	sink.err = nil
	report, err = p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Created() != 1 {
		t.Errorf("retry created = %d, want 1", report.Created())
	}
}

func TestRunPermanentSinkFailure(t *testing.T) {
	ledger := newMemLedger()
	sink := &memSink{err: apperr.Permanent(apperr.CodeSinkRejected, "bad payload", nil)}
	p := newTestPipeline(ledger, sink, nil)

	report, err := p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := report.Count(domain.OutcomeFailedPermanent); n != 1 {
		t.Errorf("failed_permanent = %d, want 1", n)
	}
	if report.Outcomes[0].Error == "" {
		t.Error("failed outcome missing error detail")
	}
	if ledger.size() != 0 {
		t.Error("failed message must not be recorded in the ledger")
	}
}

func TestRunUnclassifiedSinkErrorIsRetryable(t *testing.T) {
	sink := &memSink{err: errors.New("connection reset")}
	p := newTestPipeline(newMemLedger(), sink, nil)

	report, err := p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := report.Count(domain.OutcomeFailedRetryable); n != 1 {
		t.Errorf("unclassified errors should default to retryable, got %+v", report.Outcomes)
	}
}

func TestRunLedgerFailureAbortsCycle(t *testing.T) {
	ledger := newMemLedger()
	ledger.hasErr = errors.New("redis down")
	sink := &memSink{}
	notifier := &memNotifier{}
	p := newTestPipeline(ledger, sink, notifier)

	_, err := p.Run(context.Background(), batch("m1", "m2"), Options{})
	if err == nil {
		t.Fatal("Run() must fail when the ledger is unreachable")
	}
	if !apperr.IsFatal(err) {
		t.Errorf("ledger failure should be fatal, got kind %v", apperr.KindOf(err))
	}
	if sink.count() != 0 {
		t.Errorf("sink written %d times despite ledger failure", sink.count())
	}

	found := false
	for _, k := range notifier.kinds() {
		if k == domain.EventCycleFailed {
			found = true
		}
	}
	if !found {
		t.Error("cycle failure not notified")
	}
}

func TestRunRecordFailureLeavesMessageRetryable(t *testing.T) {
	ledger := newMemLedger()
	ledger.recordErr = errors.New("write refused")
	p := newTestPipeline(ledger, &memSink{}, nil)

	report, err := p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := report.Count(domain.OutcomeFailedRetryable); n != 1 {
		t.Errorf("record failure should leave the message retryable, got %+v", report.Outcomes)
	}
}

func TestRunNotifiesCriticalTickets(t *testing.T) {
	notifier := &memNotifier{}
	deps := Deps{
		Normalizer: fakeNormalizer{},
		Classifier: fakeClassifier{priority: domain.PriorityCritique},
		Extractor:  fakeExtractor{},
		Ledger:     newMemLedger(),
		Sink:       &memSink{},
		Notifier:   notifier,
	}
	p := New(deps, Config{CriticalPriority: domain.PriorityCritique}, logger.Nop())

	if _, err := p.Run(context.Background(), batch("m1"), Options{}); err != nil {
		t.Fatal(err)
	}

	kinds := notifier.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventTicketCreatedCritical {
		t.Errorf("events = %v, want one ticket_created_critical", kinds)
	}
}

func TestRunBoundsBatchSize(t *testing.T) {
	p := newTestPipeline(newMemLedger(), &memSink{}, nil)

	report, err := p.Run(context.Background(), batch("a", "b", "c", "d", "e"), Options{MaxBatchSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outcomes) != 3 {
		t.Errorf("outcomes = %d, want 3 (bounded)", len(report.Outcomes))
	}
}

func TestRunSinkEchoOverridesTicketID(t *testing.T) {
	sink := &memSink{echoID: "EXT-42"}
	p := newTestPipeline(newMemLedger(), sink, nil)

	report, err := p.Run(context.Background(), batch("m1"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Outcomes[0].TicketID != "EXT-42" {
		t.Errorf("ticket ID = %q, want sink-assigned EXT-42", report.Outcomes[0].TicketID)
	}
}

func TestRunCancelledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memSink{}
	p := newTestPipeline(newMemLedger(), sink, nil)

	report, err := p.Run(ctx, batch("m1", "m2", "m3"), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, cancellation is not a cycle failure", err)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0 with pre-cancelled context", len(report.Outcomes))
	}
	if sink.count() != 0 {
		t.Errorf("sink written %d times after cancellation", sink.count())
	}
}
