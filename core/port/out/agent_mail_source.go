package out

import (
	"context"
	"time"
)

// RawMessage is one transport message before normalization. Raw holds the
// full RFC 822 payload; ID is the transport-assigned identity (may be
// empty, the normalizer synthesizes one in that case).
type RawMessage struct {
	ID        string
	Raw       []byte
	FetchedAt time.Time
}

// MailSource yields the raw messages for one cycle. The pipeline never
// calls MarkProcessed itself: the scheduler marks only messages whose
// outcome was Created or Skipped(duplicate), so Failed messages show up
// again next cycle.
type MailSource interface {
	Fetch(ctx context.Context, max int) ([]RawMessage, error)
	MarkProcessed(ctx context.Context, messageID string) error
}
