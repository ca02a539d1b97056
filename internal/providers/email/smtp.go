package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipients = errors.New("email: no recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg  Config
	now  func() time.Time
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, now: time.Now, send: smtp.SendMail}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	to := msg.recipients()
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	return p.send(addr, auth, p.cfg.From, to, p.encode(to, msg))
}

func (p *SMTPProvider) encode(to []string, msg Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", p.cfg.From)
	header("To", strings.Join(to, ", "))
	// header injection through alert titles
	header("Subject", strings.NewReplacer("\r", " ", "\n", " ").Replace(msg.Subject))
	header("Date", p.now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

// AlertView is the data the critical alert template renders.
type AlertView struct {
	Title       string
	Description string
	Type        string
	Severity    string
	Reference   string
	RaisedAt    time.Time
}

// RenderAlert builds the notification for a critical planning alert.
func RenderAlert(to []string, view AlertView) (Message, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "critical_alert.html", view); err != nil {
		return Message{}, fmt.Errorf("render critical_alert: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s", view.Severity, view.Title),
		HTML:    body.String(),
	}, nil
}
