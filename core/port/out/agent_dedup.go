package out

import (
	"context"
	"time"

	"github.com/legb78/mail-classification-agent/core/domain"
)

// DedupLedger is the durable record of which message identities have
// already produced a ticket. It is the core correctness guarantee of the
// system: at most one ticket per message ID across process restarts.
//
// Has must support concurrent readers; Record is serialized by the
// implementation and must be idempotent (recording the same message ID
// twice is a no-op after the first).
type DedupLedger interface {
	Has(ctx context.Context, messageID string) (bool, error)
	Record(ctx context.Context, messageID, ticketID string, processedAt time.Time) error
}

// LedgerReader is the optional inspection surface some ledgers expose for
// the admin API.
type LedgerReader interface {
	Entries(ctx context.Context, limit int) ([]domain.DedupEntry, error)
}
