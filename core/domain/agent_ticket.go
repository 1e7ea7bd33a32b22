package domain

import (
	"strings"
	"time"
)

// TicketStatus is the ticket lifecycle state. The pipeline only ever emits
// StatusNew; later transitions belong to the ticket-management side.
type TicketStatus string

const (
	StatusNew        TicketStatus = "New"
	StatusInProgress TicketStatus = "InProgress"
	StatusResolved   TicketStatus = "Resolved"
)

// TicketRecord is the pipeline's output unit: one classified, write-once
// record per non-duplicate inbound message.
type TicketRecord struct {
	ID          string
	MessageID   string
	ReceivedAt  time.Time
	SenderName  string
	SenderEmail string
	Subject     string
	Category    Category
	Priority    Priority
	Status      TicketStatus
	Description string
	AssignedTo  string
	Notes       string
}

// descriptionExcerptLen bounds the body excerpt included in the ticket
// description, matching the spreadsheet column width the desk works with.
const descriptionExcerptLen = 200

// BuildDescription combines a body excerpt with the extraction digest into
// the sink's description field.
func BuildDescription(bodyText string, digest ExtractionDigest) string {
	excerpt := strings.TrimSpace(bodyText)
	if runes := []rune(excerpt); len(runes) > descriptionExcerptLen {
		excerpt = string(runes[:descriptionExcerptLen]) + "..."
	}

	var b strings.Builder
	b.WriteString(excerpt)

	if digest.MainIssue != "" {
		b.WriteString("\nProbleme: ")
		b.WriteString(digest.MainIssue)
	}
	if digest.ProductOrService != "" {
		b.WriteString("\nProduit/Service: ")
		b.WriteString(digest.ProductOrService)
	}
	if digest.ReferenceNumber != "" {
		b.WriteString("\nReference: ")
		b.WriteString(digest.ReferenceNumber)
	}
	return b.String()
}

// DedupEntry is one append-only ledger row: a message identity and the
// ticket it produced. Entries are never updated or removed by the core.
type DedupEntry struct {
	MessageID   string
	TicketID    string
	ProcessedAt time.Time
}
