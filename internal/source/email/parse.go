package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// MaxBodyLength is the number of characters of body kept per message.
const MaxBodyLength = 5000

// parsedMessage is the header and body data pulled out of a raw
// RFC 822 message.
type parsedMessage struct {
	Subject string
	From    string
	Date    time.Time
	Body    string
}

// parseMessage reads the headers of raw and extracts its plain-text
// body. Only an unreadable header is an error; a body that cannot be
// decoded yields an empty Body.
func parseMessage(raw []byte) (parsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return parsedMessage{}, fmt.Errorf("reading message header: %w", err)
	}
	defer mr.Close()

	var msg parsedMessage

	msg.Subject, err = mr.Header.Subject()
	if err != nil {
		msg.Subject = mr.Header.Get("Subject")
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].String()
	} else {
		msg.From = mr.Header.Get("From")
	}

	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	msg.Body = normalizeBody(firstPlainText(mr))
	return msg, nil
}

// firstPlainText walks the parts depth-first and returns the first
// inline text/plain body. Attachments are skipped.
func firstPlainText(mr *mail.Reader) string {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil {
			return ""
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if !isPlainText(h) {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return ""
		}
		return string(body)
	}
}

// isPlainText reports whether an inline part is text/plain. A part
// without a Content-Type header defaults to text/plain.
func isPlainText(h *mail.InlineHeader) bool {
	if h.Get("Content-Type") == "" {
		return true
	}
	contentType, _, err := h.ContentType()
	if err != nil {
		return false
	}
	return strings.EqualFold(contentType, "text/plain")
}

// normalizeBody collapses whitespace runs to single spaces and keeps at
// most MaxBodyLength characters.
func normalizeBody(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	r := []rune(body)
	if len(r) > MaxBodyLength {
		return string(r[:MaxBodyLength])
	}
	return body
}

// MatchKeywords returns the keywords that occur, case-insensitively, in
// subject + " " + body. The result keeps the order of keywords.
func MatchKeywords(subject, body string, keywords []string) []string {
	haystack := strings.ToLower(subject + " " + body)

	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
