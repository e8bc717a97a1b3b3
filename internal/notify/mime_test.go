package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/mikeyg42/sentinel/internal/watcher"
)

func TestBuildMIMEHeadersAndParts(t *testing.T) {
	msg := &Message{
		From:      "alerts@example.com",
		FromName:  "Front Door",
		To:        []string{"a@example.com", "b@example.com"},
		Subject:   "Activity detected",
		TextBody:  "plain body",
		HTMLBody:  "<p>html body</p>",
		MessageID: "abc123@sentinel",
	}

	raw, err := BuildMIME(msg, time.Date(2026, 3, 14, 8, 15, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildMIME: %v", err)
	}
	out := string(raw)

	for _, want := range []string{
		"To: a@example.com, b@example.com",
		"Auto-Submitted: auto-generated",
		"X-Auto-Response-Suppress: All",
		"Precedence: bulk",
		"Message-Id: <abc123@sentinel>",
		"Content-Type: multipart/alternative; boundary=",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Type: text/html; charset=utf-8",
		"plain body",
		"<p>html body</p>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q:\n%s", want, out)
		}
	}

	// Headers end before the first body part.
	if !strings.Contains(out, "\r\n\r\n") {
		t.Error("no blank line between headers and body")
	}
}

func TestBuildMIMETextOnly(t *testing.T) {
	msg := &Message{
		From:     "alerts@example.com",
		To:       []string{"a@example.com"},
		Subject:  "Test",
		TextBody: "hello",
	}
	raw, err := BuildMIME(msg, time.Now())
	if err != nil {
		t.Fatalf("BuildMIME: %v", err)
	}
	if strings.Contains(string(raw), "text/html") {
		t.Error("html part emitted for text-only message")
	}
}

func TestBuildMIMERequiresAddressing(t *testing.T) {
	if _, err := BuildMIME(&Message{From: "a@example.com"}, time.Now()); err == nil {
		t.Error("expected error with no recipients")
	}
	if _, err := BuildMIME(&Message{To: []string{"a@example.com"}}, time.Now()); err == nil {
		t.Error("expected error with no sender")
	}
}

func TestAlertMessageTriggers(t *testing.T) {
	info := watcher.SessionInfo{
		ID:        "evt-1",
		StartedAt: time.Date(2026, 3, 14, 8, 15, 0, 0, time.UTC),
		Triggers:  []string{"motion", "voice"},
	}
	msg := AlertMessage(info, "Front Door", "alerts@example.com", []string{"me@example.com"})

	if !strings.Contains(msg.Subject, "motion, voice") {
		t.Errorf("subject missing triggers: %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "evt-1") {
		t.Error("text body missing event id")
	}
	if msg.MessageID == "" {
		t.Error("empty message id")
	}

	// No triggers recorded falls back to motion.
	fallback := AlertMessage(watcher.SessionInfo{ID: "evt-2", StartedAt: info.StartedAt}, "Front Door", "alerts@example.com", nil)
	if !strings.Contains(fallback.Subject, "motion") {
		t.Errorf("fallback subject = %q", fallback.Subject)
	}
}
