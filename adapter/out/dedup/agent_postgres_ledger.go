package dedup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// PostgresLedger implements out.DedupLedger on a single append-only
// table. Idempotency comes from the primary key plus ON CONFLICT DO
// NOTHING.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a Postgres-backed ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the ledger table when missing. Called once at
// startup.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS processed_messages (
			message_id   TEXT PRIMARY KEY,
			ticket_id    TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return apperr.Fatal(apperr.CodeLedgerError, "creating ledger schema", err)
	}
	return nil
}

// Has reports whether the message has already produced a ticket.
func (l *PostgresLedger) Has(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Fatal(apperr.CodeLedgerError, "ledger read failed", err)
	}
	return exists, nil
}

// Record appends the entry; a concurrent double-record is harmless, the
// first row wins.
func (l *PostgresLedger) Record(ctx context.Context, messageID, ticketID string, processedAt time.Time) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO processed_messages (message_id, ticket_id, processed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, ticketID, processedAt,
	)
	if err != nil {
		return apperr.Fatal(apperr.CodeLedgerError, "ledger write failed", err)
	}
	return nil
}

// Entries lists recent ledger rows for the admin API.
func (l *PostgresLedger) Entries(ctx context.Context, limit int) ([]domain.DedupEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx,
		`SELECT message_id, ticket_id, processed_at
		 FROM processed_messages
		 ORDER BY processed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeLedgerError, "ledger read failed", err)
	}
	defer rows.Close()

	var entries []domain.DedupEntry
	for rows.Next() {
		var e domain.DedupEntry
		if err := rows.Scan(&e.MessageID, &e.TicketID, &e.ProcessedAt); err != nil {
			return nil, apperr.Fatal(apperr.CodeLedgerError, "scanning ledger row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Fatal(apperr.CodeLedgerError, "iterating ledger rows", err)
	}
	return entries, nil
}

var _ out.DedupLedger = (*PostgresLedger)(nil)

var _ out.LedgerReader = (*PostgresLedger)(nil)
