package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"notify-mail-relay-go/internal/model"
)

const (
	senderName   = "Notify Mail Relay"
	footerMarker = "Sent automatically by notify-mail-relay"
	timeLayout   = "2006-01-02 15:04:05"
)

// Subject returns the mail subject for a record
func Subject(rec model.ForwardRecord) string {
	return fmt.Sprintf("[%s] %s", recordSender(rec), rec.Title)
}

func recordSender(rec model.ForwardRecord) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.SourceApp
}

func composeBody(rec model.ForwardRecord) string {
	rule := strings.Repeat("=", 30)

	var b strings.Builder
	b.WriteString("Notification forwarded\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "App: %s\n", recordSender(rec))
	if rec.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	}
	fmt.Fprintf(&b, "Received: %s\n\n", rec.Timestamp.Format(timeLayout))
	b.WriteString("Content:\n")
	b.WriteString(rec.Content + "\n\n")
	b.WriteString(rule + "\n")
	b.WriteString(footerMarker + "\n")
	return b.String()
}

// composeMessage renders the full RFC 5322 message for a record
func composeMessage(cfg model.EmailConfig, rec model.ForwardRecord, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: senderName, Address: cfg.SenderEmail}})
	h.SetAddressList("To", []*mail.Address{{Address: cfg.RecipientEmail}})
	h.SetSubject(Subject(rec))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(composeBody(rec))); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}
