// Package sheets implements the ticket sink on a Google Sheets
// spreadsheet, one appended row per ticket.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// Config holds the sink settings. CredentialsFile is a service account
// key with write access to the spreadsheet.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	SheetName       string // default "Tickets"
}

// SheetsSink implements out.TicketSink.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsSink builds the Sheets service from a service account key.
func NewSheetsSink(ctx context.Context, cfg Config) (*SheetsSink, error) {
	if cfg.SheetName == "" {
		cfg.SheetName = "Tickets"
	}
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, apperr.Fatal(apperr.CodeConfigError, "building sheets service", err)
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// Create appends the ticket as one row and echoes the record's ID. The
// append is not idempotent, so caller-side dedup is what keeps rows
// unique.
func (s *SheetsSink) Create(ctx context.Context, record *domain.TicketRecord) (string, error) {
	row := []interface{}{
		record.ID,
		record.ReceivedAt.Format("2006-01-02 15:04:05"),
		record.SenderName,
		record.SenderEmail,
		record.Subject,
		string(record.Category),
		string(record.Priority),
		string(record.Status),
		record.Description,
		record.AssignedTo,
		record.Notes,
	}

	_, err := s.svc.Spreadsheets.Values.Append(
		s.spreadsheetID,
		fmt.Sprintf("%s!A:K", s.sheetName),
		&sheets.ValueRange{Values: [][]interface{}{row}},
	).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError(err)
	}
	return record.ID, nil
}

// EnsureHeader writes the column header row when the sheet is empty.
// Called once at startup, best-effort.
func (s *SheetsSink) EnsureHeader(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Values.Get(
		s.spreadsheetID,
		fmt.Sprintf("%s!A1:K1", s.sheetName),
	).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	header := []interface{}{
		"Ticket ID", "Received", "Sender", "Email", "Subject",
		"Category", "Priority", "Status", "Description", "Assigned To", "Notes",
	}
	_, err = s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A1:K1", s.sheetName),
		&sheets.ValueRange{Values: [][]interface{}{header}},
	).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return wrapError(err)
	}
	return nil
}

// wrapError tags sink failures: quota and server trouble is retryable on
// a later cycle, anything else 4xx means the payload or setup is wrong
// and a retry cannot help.
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return apperr.Transient(apperr.CodeSinkError, "sheets unavailable", err)
		case apiErr.Code >= 400:
			return apperr.Permanent(apperr.CodeSinkRejected, "sheets rejected write", err)
		}
	}
	return apperr.Transient(apperr.CodeSinkError, "sheets write failed", err)
}

var _ out.TicketSink = (*SheetsSink)(nil)
