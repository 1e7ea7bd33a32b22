package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// InboundMessage is the canonical, immutable form of one physical mail
// message after normalization. MessageID is the primary identity used by
// the dedup ledger and is never empty: when the transport cannot supply
// one, the normalizer synthesizes it (see SyntheticMessageID).
type InboundMessage struct {
	MessageID   string
	SenderName  string
	SenderEmail string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReceivedAt  time.Time
	Attachments []Attachment
	Headers     map[string]string
}

// Attachment carries attachment metadata only. Content is never read by
// the pipeline.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
}

// syntheticIDBodyPrefix bounds how much of the body participates in the
// synthetic identity hash.
const syntheticIDBodyPrefix = 256

// SyntheticMessageID derives a stable message identity for transports that
// do not assign one. The same (sender, subject, receivedAt, body prefix)
// always hashes to the same ID, so re-polling the same mailbox state keeps
// hitting the same ledger key.
func SyntheticMessageID(senderEmail, subject string, receivedAt time.Time, body string) string {
	if len(body) > syntheticIDBodyPrefix {
		body = body[:syntheticIDBodyPrefix]
	}

	h := sha256.New()
	h.Write([]byte(senderEmail))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(receivedAt.UTC().Format(time.RFC3339)))
	h.Write([]byte{0})
	h.Write([]byte(body))

	return "synth-" + hex.EncodeToString(h.Sum(nil))[:40]
}
