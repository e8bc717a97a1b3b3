package notify

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikeyg42/sentinel/internal/watcher"
)

// Message is one alert email before MIME encoding.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string

	MessageID string
}

// AlertMessage renders a recording-started alert for the given session.
func AlertMessage(info watcher.SessionInfo, systemName, from string, to []string) *Message {
	triggers := "motion"
	if len(info.Triggers) > 0 {
		triggers = strings.Join(info.Triggers, ", ")
	}
	when := info.StartedAt.Format("Mon, 02 Jan 2006 15:04:05 MST")

	text := fmt.Sprintf(
		"%s detected activity (%s) at %s.\n\nA recording has started. Artifacts will be saved under the configured output directory.\n\nEvent ID: %s\n",
		systemName, triggers, when, info.ID)

	html := fmt.Sprintf(`<html><body>
<h2>%s</h2>
<p><strong>Activity detected:</strong> %s</p>
<p><strong>Time:</strong> %s</p>
<p>A recording has started. Artifacts will be saved under the configured output directory.</p>
<p style="color:#888;font-size:12px">Event ID: %s</p>
</body></html>`, systemName, triggers, when, info.ID)

	return &Message{
		From:      from,
		FromName:  systemName,
		To:        to,
		Subject:   fmt.Sprintf("[%s] Activity detected: %s", systemName, triggers),
		TextBody:  text,
		HTMLBody:  html,
		MessageID: fmt.Sprintf("%s@sentinel", uuid.NewString()),
	}
}

// BuildMIME encodes the message as multipart/alternative with headers that
// suppress vacation responders and mailing-list style auto-replies.
func BuildMIME(msg *Message, now time.Time) ([]byte, error) {
	if msg.From == "" || len(msg.To) == 0 {
		return nil, fmt.Errorf("mime: from and to are required")
	}

	var buf bytes.Buffer
	alt := multipart.NewWriter(&buf)
	boundary := alt.Boundary()

	headers := make(textproto.MIMEHeader)
	if msg.FromName != "" {
		headers.Set("From", fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", msg.FromName), msg.From))
	} else {
		headers.Set("From", msg.From)
	}
	headers.Set("To", strings.Join(msg.To, ", "))
	headers.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	headers.Set("Date", now.Format(time.RFC1123Z))
	headers.Set("MIME-Version", "1.0")
	headers.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%s", boundary))
	if msg.MessageID != "" {
		headers.Set("Message-ID", fmt.Sprintf("<%s>", msg.MessageID))
	}

	// Keep auto-responders quiet.
	headers.Set("Auto-Submitted", "auto-generated")
	headers.Set("X-Auto-Response-Suppress", "All")
	headers.Set("Precedence", "bulk")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers.Get(k))
	}
	fmt.Fprintf(&buf, "\r\n")

	if err := writePart(&buf, boundary, "text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if msg.HTMLBody != "" {
		if err := writePart(&buf, boundary, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func writePart(buf *bytes.Buffer, boundary, contentType, body string) error {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Type: %s; charset=utf-8\r\n", contentType)
	fmt.Fprintf(buf, "Content-Transfer-Encoding: 8bit\r\n\r\n")
	if _, err := buf.WriteString(body); err != nil {
		return err
	}
	_, err := buf.WriteString("\r\n")
	return err
}
