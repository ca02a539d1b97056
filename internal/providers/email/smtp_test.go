package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderSendsRenderedAlert(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "smtp.local", Port: 2525, From: "alerts@example.com"})
	p.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	msg, err := RenderAlert([]string{" planner@example.com ", ""}, AlertView{
		Title:       "Reorder P-1\r\nBcc: evil@example.com",
		Description: "stock is low",
		Type:        "reorder",
		Severity:    "critical",
		Reference:   "P-1",
		RaisedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, p.Send(context.Background(), msg))

	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"planner@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [critical] Reorder P-1  Bcc: evil@example.com\r\n")
	headers, _, found := strings.Cut(gotMsg, "\r\n\r\n")
	require.True(t, found)
	assert.NotContains(t, headers, "\r\nBcc:")
	assert.Contains(t, gotMsg, "Date: Thu, 01 Jan 2026 00:00:00 +0000")
	assert.Contains(t, gotMsg, "stock is low")
	assert.Contains(t, gotMsg, "2026-01-01 00:00 UTC")
}

func TestSMTPProviderRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), Message{To: []string{" "}}), ErrNoRecipients)
}

func TestSMTPProviderHonoursCancelledContext(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25})
	p.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Send(ctx, Message{To: []string{"a@example.com"}}), context.Canceled)
}
