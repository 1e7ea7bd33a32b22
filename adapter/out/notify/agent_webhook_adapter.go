// Package notify delivers operational events to chat webhooks. Delivery
// is best-effort: the pipeline never blocks or fails on a notification.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
	"github.com/legb78/mail-classification-agent/pkg/httputil"
	"github.com/legb78/mail-classification-agent/pkg/resilience"
)

// Config holds webhook targets. Empty URLs disable that target.
type Config struct {
	SlackWebhookURL string
	TeamsWebhookURL string
	Timeout         time.Duration // default 10s
}

// WebhookNotifier implements out.Notifier over Slack and Teams incoming
// webhooks.
type WebhookNotifier struct {
	cfg    Config
	client *http.Client
}

// NewWebhookNotifier creates the notifier.
func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: httputil.NewClient(timeout),
	}
}

// Notify posts the event to every configured webhook. The first delivery
// failure is returned so the caller can log it; other targets are still
// attempted.
func (n *WebhookNotifier) Notify(ctx context.Context, event domain.Event) error {
	text := formatEvent(event)
	if text == "" {
		return nil
	}

	var firstErr error
	if n.cfg.SlackWebhookURL != "" {
		payload := map[string]string{"text": text}
		if err := n.deliver(ctx, n.cfg.SlackWebhookURL, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n.cfg.TeamsWebhookURL != "" {
		payload := map[string]string{
			"@type":    "MessageCard",
			"@context": "http://schema.org/extensions",
			"text":     text,
		}
		if err := n.deliver(ctx, n.cfg.TeamsWebhookURL, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// deliver retries transient failures with backoff; permanent ones (bad
// payload, bad URL) surface immediately.
func (n *WebhookNotifier) deliver(ctx context.Context, url string, payload any) error {
	return resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}, apperr.IsTransient, func() error {
		return n.post(ctx, url, payload)
	})
}

func (n *WebhookNotifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Permanent(apperr.CodeNotifyError, "marshaling webhook payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Permanent(apperr.CodeNotifyError, "building webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return apperr.Transient(apperr.CodeNotifyError, "webhook delivery failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperr.Transient(apperr.CodeNotifyError,
			fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}
	return nil
}

func formatEvent(event domain.Event) string {
	switch event.Kind {
	case domain.EventTicketCreatedCritical:
		if event.Ticket == nil {
			return ""
		}
		return fmt.Sprintf(":rotating_light: Ticket critique %s [%s/%s] %s (de %s)",
			event.Ticket.ID, event.Ticket.Category, event.Ticket.Priority,
			event.Ticket.Subject, event.Ticket.SenderEmail)
	case domain.EventCycleFailed:
		if event.Err == nil {
			return "Cycle d'ingestion en echec"
		}
		return fmt.Sprintf(":warning: Cycle d'ingestion en echec: %v", event.Err)
	default:
		return ""
	}
}

var _ out.Notifier = (*WebhookNotifier)(nil)
