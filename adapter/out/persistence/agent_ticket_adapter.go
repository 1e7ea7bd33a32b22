// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// TicketAdapter implements out.TicketRepository using PostgreSQL. It is
// a local archive of emitted tickets for the admin API; the sink, not
// this table, is the system of record.
type TicketAdapter struct {
	db *sqlx.DB
}

// NewTicketAdapter creates a new TicketAdapter.
func NewTicketAdapter(db *sqlx.DB) *TicketAdapter {
	return &TicketAdapter{db: db}
}

// ticketRow represents the database row for tickets.
type ticketRow struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	ReceivedAt  time.Time `db:"received_at"`
	SenderName  string    `db:"sender_name"`
	SenderEmail string    `db:"sender_email"`
	Subject     string    `db:"subject"`
	Category    string    `db:"category"`
	Priority    string    `db:"priority"`
	Status      string    `db:"status"`
	Description string    `db:"description"`
	AssignedTo  string    `db:"assigned_to"`
	Notes       string    `db:"notes"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *ticketRow) toEntity() *domain.TicketRecord {
	return &domain.TicketRecord{
		ID:          r.ID,
		MessageID:   r.MessageID,
		ReceivedAt:  r.ReceivedAt,
		SenderName:  r.SenderName,
		SenderEmail: r.SenderEmail,
		Subject:     r.Subject,
		Category:    domain.Category(r.Category),
		Priority:    domain.Priority(r.Priority),
		Status:      domain.TicketStatus(r.Status),
		Description: r.Description,
		AssignedTo:  r.AssignedTo,
		Notes:       r.Notes,
	}
}

// EnsureSchema creates the archive table when missing.
func (a *TicketAdapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tickets (
			id           TEXT PRIMARY KEY,
			message_id   TEXT NOT NULL,
			received_at  TIMESTAMPTZ NOT NULL,
			sender_name  TEXT NOT NULL DEFAULT '',
			sender_email TEXT NOT NULL DEFAULT '',
			subject      TEXT NOT NULL DEFAULT '',
			category     TEXT NOT NULL,
			priority     TEXT NOT NULL,
			status       TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			assigned_to  TEXT NOT NULL DEFAULT '',
			notes        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return apperr.Fatal(apperr.CodeDatabaseError, "creating tickets schema", err)
	}
	return nil
}

// Insert archives one emitted ticket.
func (a *TicketAdapter) Insert(ctx context.Context, ticket *domain.TicketRecord) error {
	query := `
		INSERT INTO tickets (
			id, message_id, received_at, sender_name, sender_email,
			subject, category, priority, status, description, assigned_to, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := a.db.ExecContext(ctx, query,
		ticket.ID, ticket.MessageID, ticket.ReceivedAt,
		ticket.SenderName, ticket.SenderEmail, ticket.Subject,
		string(ticket.Category), string(ticket.Priority), string(ticket.Status),
		ticket.Description, ticket.AssignedTo, ticket.Notes,
	)
	if err != nil {
		return apperr.Transient(apperr.CodeDatabaseError, "inserting ticket", err)
	}
	return nil
}

// ListRecent returns the most recently archived tickets.
func (a *TicketAdapter) ListRecent(ctx context.Context, limit int) ([]*domain.TicketRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ticketRow
	query := `SELECT * FROM tickets ORDER BY created_at DESC LIMIT $1`

	if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, apperr.Transient(apperr.CodeDatabaseError, "listing tickets", err)
	}

	tickets := make([]*domain.TicketRecord, len(rows))
	for i := range rows {
		tickets[i] = rows[i].toEntity()
	}
	return tickets, nil
}

var _ out.TicketRepository = (*TicketAdapter)(nil)
