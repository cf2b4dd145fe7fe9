// Package mail defines the captured SMTP message and how it is assembled from a raw DATA payload.
package mail

import (
	"crypto/rand"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NoSubject is substituted for a message that carries no Subject header.
const NoSubject = "(No subject)"

// ID is the ULID-based identifier of a captured message: a 48-bit millisecond timestamp
// followed by 80 bits of randomness, rendered as 26 characters of Crockford base32.
type ID = ulid.ULID

// ParseID decodes the canonical 26-character string form of an ID.
func ParseID(s string) (ID, error) {
	return ulid.ParseStrict(s)
}

// Mail is an immutable record of one complete SMTP transaction accepted by the receiver.
// It is constructed once at DATA-end and never mutated afterwards.
type Mail struct {
	ID      ID
	From    string
	To      []string
	Subject string
	Date    time.Time
	Headers []string
	Body    string
	Raw     string
	Size    int
}

// entropy drives ULID randomness. ulid.Monotonic guarantees ordering for IDs minted within the
// same millisecond, which keeps the identifier lexicographically sortable under load.
var entropy = ulid.Monotonic(rand.Reader, 0)

// New builds a Mail from the sender, recipients, and the dot-unstuffed DATA payload exactly as it
// arrived on the wire (CRLF-terminated lines, no trailing terminator line). received is the time to
// fall back to when the message carries no parseable Date header.
func New(from string, to []string, raw string, received time.Time) *Mail {
	toCopy := make([]string, len(to))
	copy(toCopy, to)

	m := &Mail{
		ID:      ulid.MustNew(ulid.Timestamp(received), entropy),
		From:    from,
		To:      toCopy,
		Subject: NoSubject,
		Date:    received,
		Raw:     raw,
		Size:    len(raw),
	}

	headers, body := splitHeadersBody(raw)
	m.Headers = headers
	m.Body = body

	if subject, ok := headerValue(headers, "Subject"); ok && subject != "" {
		m.Subject = subject
	}
	if dateStr, ok := headerValue(headers, "Date"); ok {
		if parsed, err := mail.ParseDate(dateStr); err == nil {
			m.Date = parsed.UTC()
		}
	}

	return m
}

// splitHeadersBody separates the raw DATA payload at the first blank line. Lines before the blank
// line are the headers region; a header line beginning with a space or tab is a continuation of the
// previous header and is folded back into it, joined by "\r\n" as the wire originally carried it.
// The remainder is the body, rejoined with "\r\n" and with no terminator forced onto the end.
func splitHeadersBody(raw string) (headers []string, body string) {
	lines := strings.Split(raw, "\r\n")

	headerEnd := len(lines)
	for i, line := range lines {
		if line == "" {
			headerEnd = i
			break
		}
	}

	for _, line := range lines[:headerEnd] {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if n := len(headers); n > 0 {
				headers[n-1] = headers[n-1] + "\r\n" + line
				continue
			}
		}
		headers = append(headers, line)
	}

	if headerEnd < len(lines) {
		body = strings.Join(lines[headerEnd+1:], "\r\n")
	}
	return headers, body
}

// headerValue returns the whitespace-trimmed value of the first header entry matching name,
// case-insensitively. The value is not RFC 2047-decoded.
// Folded continuation lines remain embedded as "\r\n" plus whitespace in the returned value.
func headerValue(headers []string, name string) (string, bool) {
	prefix := name + ":"
	for _, h := range headers {
		if len(h) <= len(prefix) {
			continue
		}
		if !strings.EqualFold(h[:len(prefix)], prefix) {
			continue
		}
		return strings.TrimSpace(h[len(prefix):]), true
	}
	return "", false
}
