package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Email sends a summary mail when a run finishes. Other events are ignored.
type Email struct {
	Addr string
	From string
	To   string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewEmail creates an Email notifier that delivers through the SMTP relay
// at addr without authentication.
func NewEmail(addr, from, to string) *Email {
	return &Email{Addr: addr, From: from, To: to, send: smtp.SendMail, now: time.Now}
}

func (e *Email) Notify(_ context.Context, ev Event) error {
	if ev.Kind != RunFinished {
		return nil
	}
	msg := e.message(ev)
	if err := e.send(e.Addr, nil, e.From, []string{e.To}, msg); err != nil {
		return fmt.Errorf("sending notification to %s: %w", e.To, err)
	}
	return nil
}

func (e *Email) message(ev Event) []byte {
	status := "succeeded"
	if !ev.Success {
		status = "failed"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: [dsipipe] %s %s\r\n", ev.Pipeline, status)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Pipeline %s %s.\r\n", ev.Pipeline, status)
	if ev.RunID != 0 {
		fmt.Fprintf(&b, "Run: %d\r\n", ev.RunID)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, "\r\nError:\r\n%s\r\n", strings.ReplaceAll(ev.Error, "\n", "\r\n"))
	}
	b.WriteString("\r\nExecuted steps:\r\n")
	if len(ev.Executed) == 0 {
		b.WriteString("  (none)\r\n")
	}
	for _, s := range ev.Executed {
		fmt.Fprintf(&b, "  %s\r\n", s)
	}
	return b.Bytes()
}
