package out

import (
	"context"

	"github.com/legb78/mail-classification-agent/core/domain"
)

// TicketSink receives finished ticket records. Create returns the sink's
// confirmed ticket ID on success; failures are tagged transient or
// permanent through pkg/apperr so the pipeline can pick the right outcome.
type TicketSink interface {
	Create(ctx context.Context, ticket *domain.TicketRecord) (ticketID string, err error)
}
