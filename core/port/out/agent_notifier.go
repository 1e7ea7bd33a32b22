package out

import (
	"context"

	"github.com/legb78/mail-classification-agent/core/domain"
)

// Notifier delivers pipeline events to outbound channels (chat webhooks,
// email). Delivery is best-effort: a notifier error is logged by the
// caller and never fails the pipeline.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}
