// Package normalize turns raw transport messages into canonical
// InboundMessage records. Normalization is total: malformed input degrades
// field by field, it never fails.
package normalize

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
)

// Normalizer parses RFC 822 payloads. Stateless and safe for concurrent
// use.
type Normalizer struct {
	decoder mime.WordDecoder
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts one raw message into its canonical form. Malformed
// headers degrade to empty strings and malformed dates degrade to the
// fetch time; a missing message ID is synthesized so dedup always has a
// stable key.
func (n *Normalizer) Normalize(raw out.RawMessage) *domain.InboundMessage {
	msg := &domain.InboundMessage{
		MessageID:  raw.ID,
		ReceivedAt: raw.FetchedAt,
		Headers:    map[string]string{},
	}

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw.Raw)))
	if err != nil {
		// Not parseable as a mail message at all: treat the whole payload
		// as the body.
		msg.BodyText = strings.TrimSpace(string(raw.Raw))
		n.ensureIdentity(msg)
		return msg
	}

	for key := range parsed.Header {
		msg.Headers[key] = parsed.Header.Get(key)
	}

	msg.Subject = n.decodeHeader(parsed.Header.Get("Subject"))
	msg.SenderName, msg.SenderEmail = n.parseAddress(parsed.Header.Get("From"))

	if date, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}

	if id := strings.Trim(parsed.Header.Get("Message-ID"), "<> \t"); id != "" && msg.MessageID == "" {
		msg.MessageID = id
	}

	text, html, attachments := n.extractBody(parsed)
	msg.BodyText = strings.TrimSpace(text)
	msg.BodyHTML = html
	msg.Attachments = attachments

	if msg.BodyText == "" && html != "" {
		msg.BodyText = strings.TrimSpace(stripHTML(html))
	}

	n.ensureIdentity(msg)
	return msg
}

func (n *Normalizer) ensureIdentity(msg *domain.InboundMessage) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	if msg.MessageID == "" {
		msg.MessageID = domain.SyntheticMessageID(msg.SenderEmail, msg.Subject, msg.ReceivedAt, msg.BodyText)
	}
}

func (n *Normalizer) decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := n.decoder.DecodeHeader(header)
	if err != nil {
		return strings.TrimSpace(header)
	}
	return strings.TrimSpace(decoded)
}

func (n *Normalizer) parseAddress(header string) (name, email string) {
	if header == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(n.decodeHeader(header))
	if err != nil {
		return "", strings.TrimSpace(header)
	}
	return addr.Name, addr.Address
}

// extractBody walks the MIME structure, preferring text/plain for the
// body, retaining text/html separately, and collecting attachment
// metadata without reading attachment content.
func (n *Normalizer) extractBody(msg *mail.Message) (text, html string, attachments []domain.Attachment) {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		body := decodePart(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		if mediaType == "text/html" {
			return "", body, nil
		}
		return body, "", nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", "", nil
	}

	reader := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}

		disposition := part.Header.Get("Content-Disposition")
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))

		if strings.HasPrefix(disposition, "attachment") || part.FileName() != "" {
			size := int64(0)
			if data, err := io.ReadAll(part); err == nil {
				size = int64(len(data))
			}
			attachments = append(attachments, domain.Attachment{
				Filename:    n.decodeHeader(part.FileName()),
				ContentType: partType,
				Size:        size,
			})
			continue
		}

		switch {
		case partType == "text/plain" && text == "":
			text = decodePart(part, part.Header.Get("Content-Transfer-Encoding"))
		case partType == "text/html" && html == "":
			html = decodePart(part, part.Header.Get("Content-Transfer-Encoding"))
		case strings.HasPrefix(partType, "multipart/"):
			// Nested multipart (e.g. multipart/alternative inside
			// multipart/mixed): recurse one level through a synthetic
			// message.
			nested := &mail.Message{
				Header: mail.Header{"Content-Type": []string{part.Header.Get("Content-Type")}},
				Body:   part,
			}
			nt, nh, na := n.extractBody(nested)
			if text == "" {
				text = nt
			}
			if html == "" {
				html = nh
			}
			attachments = append(attachments, na...)
		}
	}

	return text, html, attachments
}

// decodePart reads a body or part, honoring the transfer encoding.
// Undecodable content degrades to the raw bytes.
func decodePart(r io.Reader, encoding string) string {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return ""
		}
		cleaned := strings.Map(func(c rune) rune {
			if c == '\n' || c == '\r' {
				return -1
			}
			return c
		}, string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return string(raw)
		}
		return string(decoded)
	case "quoted-printable":
		// A decode error mid-stream keeps whatever decoded before it.
		decoded, _ := io.ReadAll(quotedprintable.NewReader(r))
		return string(decoded)
	default:
		raw, _ := io.ReadAll(r)
		return string(raw)
	}
}

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// stripHTML reduces markup to readable text: tags removed, block elements
// turned into line breaks, entities decoded.
func stripHTML(html string) string {
	var b strings.Builder
	b.Grow(len(html))

	inTag := false
	var tag strings.Builder
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			if fields := strings.Fields(tag.String()); len(fields) > 0 {
				switch strings.ToLower(strings.TrimPrefix(fields[0], "/")) {
				case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "table":
					b.WriteByte('\n')
				}
			}
		case inTag:
			tag.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	text := htmlEntities.Replace(b.String())

	// Collapse runs of blank lines left behind by stripped markup.
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
