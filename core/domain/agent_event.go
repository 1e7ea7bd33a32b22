package domain

// EventKind identifies a notification-worthy pipeline event.
type EventKind string

const (
	EventTicketCreatedCritical EventKind = "ticket_created_critical"
	EventCycleFailed           EventKind = "cycle_failed"
)

// Event is delivered best-effort to the notification sinks. Exactly one of
// Ticket or Err carries the payload, depending on Kind.
type Event struct {
	Kind   EventKind
	Ticket *TicketRecord
	Err    error
}
