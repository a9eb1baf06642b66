package gmail

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/maildex/internal/archive"
)

// snippetMaxRunes caps the stored preview text
const snippetMaxRunes = 300

// dateLayouts are tried in order when parsing the Date header. Senders are
// sloppy about RFC 5322 so a few common deviations are included.
var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

// strippedLayouts are tried after removing a trailing parenthesized zone name
var strippedLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822,
}

// HeaderValue returns the value of the named header, or "" when the header
// is absent or the message carries no payload
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// parseMessage converts a full-format API message into an archive record.
// Conversion is best-effort: a Date header that cannot be parsed leaves Sent
// at the internal date or its zero value, a message without a decodable
// text part leaves Body empty.
func parseMessage(msg *gmail.Message) *archive.Message {
	rec := &archive.Message{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		Sender:    HeaderValue(msg, "From"),
		Recipient: HeaderValue(msg, "To"),
		Subject:   HeaderValue(msg, "Subject"),
		Date:      HeaderValue(msg, "Date"),
	}

	rec.Sent = parseDate(rec.Date)
	if rec.Sent.IsZero() && msg.InternalDate > 0 {
		rec.Sent = time.UnixMilli(msg.InternalDate).UTC()
	}

	rec.Body = plainTextBody(msg.Payload)
	rec.Snippet = makeSnippet(msg.Snippet, rec.Body)

	return rec
}

// parseDate parses an RFC 5322 Date header. When no layout matches it retries
// with any trailing parenthesized zone annotation stripped, and returns the
// zero time when no attempt succeeds.
func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	// Some senders append "(UTC)" or similar after a numeric offset
	stripped := value
	if openParen := strings.LastIndex(stripped, " ("); openParen != -1 {
		if closeParen := strings.LastIndex(stripped, ")"); closeParen > openParen {
			stripped = strings.TrimSpace(stripped[:openParen] + stripped[closeParen+1:])
		}
	}
	for _, layout := range strippedLayouts {
		if t, err := time.Parse(layout, stripped); err == nil {
			return t
		}
	}

	return time.Time{}
}

// plainTextBody walks the MIME tree and returns the first decodable
// text/plain part
func plainTextBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		if body, err := decodeBody(part.Body.Data); err == nil {
			return body
		}
	}
	for _, sub := range part.Parts {
		mimeType := strings.ToLower(sub.MimeType)
		if strings.HasPrefix(mimeType, "text/") || strings.HasPrefix(mimeType, "multipart/") {
			if body := plainTextBody(sub); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBody decodes base64url-encoded part data (Gmail API uses RFC 4648
// base64url encoding). Some senders produce unpadded or standard base64,
// so those are tried as fallbacks.
func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to decode body data: %w", err)
	}
	return string(decoded), nil
}

// makeSnippet prefers the API-provided snippet, which is already stripped of
// markup, and falls back to the leading body text. HTML entities are
// unescaped, whitespace is collapsed and the result is capped at
// snippetMaxRunes.
func makeSnippet(apiSnippet, body string) string {
	s := strings.Join(strings.Fields(html.UnescapeString(apiSnippet)), " ")
	if s == "" {
		s = strings.Join(strings.Fields(body), " ")
	}
	return truncateRunes(s, snippetMaxRunes)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
