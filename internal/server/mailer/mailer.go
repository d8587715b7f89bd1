// Package mailer delivers magic links to users.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/logging"
)

// Mailer sends a sign-in link valid for ttl to the given address.
type Mailer interface {
	SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPMailer sends multipart text/HTML mail through an SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildMessage(m.cfg.From, to, link, int(ttl.Minutes()))
	if err != nil {
		return fmt.Errorf("build email: %w", err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := sendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

const subject = "Your zoneboard sign-in link"

var htmlBody = template.Must(template.New("magic-link").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif;">
  <p>Tap the button to sign in to zoneboard. The link expires in <strong>{{.Minutes}} minutes</strong> and works once.</p>
  <p><a href="{{.Link}}" style="padding: 12px 24px; background: #2563eb; color: #fff; text-decoration: none; border-radius: 8px;">Sign in</a></p>
  <p style="color: #64748b; font-size: 12px;">{{.Link}}</p>
  <p style="color: #64748b; font-size: 12px;">If you did not ask for this email you can ignore it.</p>
</body>
</html>`))

func textBody(link string, minutes int) string {
	return fmt.Sprintf("Sign in to zoneboard\r\n\r\nOpen this link within %d minutes. It works once.\r\n\r\n%s\r\n\r\nIf you did not ask for this email you can ignore it.\r\n", minutes, link)
}

func buildMessage(from, to, link string, minutes int) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="UTF-8"`},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(textBody(link, minutes))); err != nil {
		return nil, err
	}

	html, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/html; charset="UTF-8"`},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if err := htmlBody.Execute(html, map[string]any{"Link": link, "Minutes": minutes}); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

// LogMailer writes the link to the log instead of sending it. Meant for
// local runs without a mail relay.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer")}
}

func (m *LogMailer) SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error {
	m.logger.Info(ctx, "magic link", "to", to, "link", link, "ttl", ttl.String())
	return nil
}
