package out

import (
	"context"

	"github.com/legb78/mail-classification-agent/core/domain"
)

// TicketRepository archives emitted tickets locally so the admin API can
// list them without round-tripping to the external sink. Archive failures
// are non-fatal to the pipeline.
type TicketRepository interface {
	Insert(ctx context.Context, ticket *domain.TicketRecord) error
	ListRecent(ctx context.Context, limit int) ([]*domain.TicketRecord, error)
}

// ReportRepository persists cycle reports for the admin API and for
// operator re-run decisions.
type ReportRepository interface {
	Save(ctx context.Context, report *domain.CycleReport) error
	ListRecent(ctx context.Context, limit int) ([]*domain.CycleReport, error)
}
