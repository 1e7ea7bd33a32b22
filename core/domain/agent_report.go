package domain

import "time"

// OutcomeKind tags the per-message result of one pipeline cycle.
type OutcomeKind string

const (
	OutcomeCreated          OutcomeKind = "created"
	OutcomeSkippedDuplicate OutcomeKind = "skipped_duplicate"
	OutcomeWouldCreate      OutcomeKind = "would_create" // dry-run only
	OutcomeFailedRetryable  OutcomeKind = "failed_retryable"
	OutcomeFailedPermanent  OutcomeKind = "failed_permanent"
)

// MessageOutcome is the result for a single message within a cycle.
// TicketID is set for Created and WouldCreate; Error for the Failed kinds.
type MessageOutcome struct {
	MessageID string      `json:"message_id"`
	Kind      OutcomeKind `json:"kind"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Category  Category    `json:"category,omitempty"`
	Priority  Priority    `json:"priority,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Retryable reports whether the caller may safely re-run the cycle for
// this message. Safe because the ledger guarantees at-most-once emission.
func (o MessageOutcome) Retryable() bool {
	return o.Kind == OutcomeFailedRetryable
}

// CycleReport summarizes one pipeline run. Outcomes preserve arrival order
// for reproducibility.
type CycleReport struct {
	CycleID    string           `json:"cycle_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DryRun     bool             `json:"dry_run"`
	Outcomes   []MessageOutcome `json:"outcomes"`
}

// Count returns how many outcomes are of the given kind.
func (r *CycleReport) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Created, Skipped and Failed are the counters operators act on.
func (r *CycleReport) Created() int { return r.Count(OutcomeCreated) }

func (r *CycleReport) Skipped() int { return r.Count(OutcomeSkippedDuplicate) }

func (r *CycleReport) Failed() int {
	return r.Count(OutcomeFailedRetryable) + r.Count(OutcomeFailedPermanent)
}
