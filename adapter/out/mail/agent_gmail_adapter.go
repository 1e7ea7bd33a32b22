// Package mail implements the inbound mail source on the Gmail API.
package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// Config holds Gmail source settings. CredentialsFile is the OAuth client
// JSON, TokenFile a stored token obtained out of band.
type Config struct {
	CredentialsFile string
	TokenFile       string
	Query           string // Gmail search query, default "is:unread"
	Label           string // label removed on MarkProcessed, default "UNREAD"
}

// GmailSource implements out.MailSource for a single support inbox.
type GmailSource struct {
	svc   *gmail.Service
	query string
	label string
	cb    *gobreaker.CircuitBreaker
}

// NewGmailSource builds the Gmail service from the credential and token
// files and wraps it in a circuit breaker.
func NewGmailSource(ctx context.Context, cfg Config) (*GmailSource, error) {
	if cfg.Query == "" {
		cfg.Query = "is:unread"
	}
	if cfg.Label == "" {
		cfg.Label = "UNREAD"
	}

	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeConfigError, "reading gmail credentials file", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeConfigError, "parsing gmail credentials", err)
	}
	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeConfigError, "reading gmail token file", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeSourceError, "building gmail service", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	}

	return &GmailSource{
		svc:   svc,
		query: cfg.Query,
		label: cfg.Label,
		cb:    gobreaker.NewCircuitBreaker(cbSettings),
	}, nil
}

// Fetch lists messages matching the configured query and downloads each
// in RFC 822 raw form, up to max.
func (s *GmailSource) Fetch(ctx context.Context, max int) ([]out.RawMessage, error) {
	if max <= 0 {
		max = 10
	}

	var list *gmail.ListMessagesResponse
	err := s.execute(ctx, func() error {
		var err error
		list, err = s.svc.Users.Messages.List("me").
			Q(s.query).
			MaxResults(int64(max)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, s.wrapError(err, "listing messages")
	}

	messages := make([]out.RawMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if ctx.Err() != nil {
			return nil, apperr.Fatal(apperr.CodeSourceError, "fetch interrupted", ctx.Err())
		}

		var full *gmail.Message
		err := s.execute(ctx, func() error {
			var err error
			full, err = s.svc.Users.Messages.Get("me", ref.Id).
				Format("raw").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, s.wrapError(err, fmt.Sprintf("fetching message %s", ref.Id))
		}

		raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(full.Raw)
		if err != nil {
			// Skip the undecodable message rather than stall the inbox.
			continue
		}
		messages = append(messages, out.RawMessage{
			ID:        full.Id,
			Raw:       raw,
			FetchedAt: time.Now().UTC(),
		})
	}
	return messages, nil
}

// MarkProcessed removes the configured label (UNREAD by default) so the
// message stops matching the fetch query.
func (s *GmailSource) MarkProcessed(ctx context.Context, messageID string) error {
	err := s.execute(ctx, func() error {
		_, err := s.svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{s.label},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return s.wrapError(err, fmt.Sprintf("marking message %s processed", messageID))
	}
	return nil
}

// execute wraps an API call with circuit breaker protection; client-side
// errors must not trip the breaker.
func (s *GmailSource) execute(ctx context.Context, fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})
	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	return err
}

// wrapError maps Gmail failures onto the error taxonomy. The source is
// infrastructure: everything it returns aborts the cycle, the kind only
// records whether the next cycle can expect better.
func (s *GmailSource) wrapError(err error, msg string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Transient(apperr.CodeCircuitOpen, "gmail circuit open: "+msg, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return apperr.Fatal(apperr.CodeSourceError, "gmail auth failure: "+msg, err)
		case 429, 500, 502, 503:
			return apperr.Transient(apperr.CodeSourceError, "gmail unavailable: "+msg, err)
		}
	}
	return apperr.Transient(apperr.CodeSourceError, "gmail call failed: "+msg, err)
}

type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }

func (e *nonCircuitError) Unwrap() error { return e.err }

func tokenFromFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

var _ out.MailSource = (*GmailSource)(nil)
