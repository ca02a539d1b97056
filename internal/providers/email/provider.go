package email

import (
	"context"
	"strings"
)

// Message is a rendered HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

func (m Message) recipients() []string {
	out := make([]string, 0, len(m.To))
	for _, to := range m.To {
		if to = strings.TrimSpace(to); to != "" {
			out = append(out, to)
		}
	}
	return out
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops every message. Used when SMTP is not configured.
type NoOpProvider struct{}

func (NoOpProvider) Send(context.Context, Message) error { return nil }
