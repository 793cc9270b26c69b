package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/plotark/plotark/internal/config"
)

// Message is one outbound transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer dispatches transactional email. Send failures must not abort the
// calling flow; callers degrade their response instead.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg    config.MailConfig
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs an SMTPMailer. Returns nil when the config does
// not enable mail, so callers can treat the mailer as absent.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	if !cfg.Enabled() {
		return nil
	}
	return &SMTPMailer{cfg: cfg, sendFn: smtp.SendMail}
}

// Send delivers the message over SMTP.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return fmt.Errorf("mail: not configured")
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return fmt.Errorf("mail: %w", errCtx)
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	body := buildMIME(m.cfg.From, to, msg.Subject, msg.HTML)
	if errSend := m.sendFn(addr, auth, m.cfg.From, []string{to}, body); errSend != nil {
		return fmt.Errorf("mail: send: %w", errSend)
	}
	return nil
}

func buildMIME(from, to, subject, html string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(html)
	return []byte(sb.String())
}

// VerificationEmail renders the confirmation email for a token.
func VerificationEmail(to, verifyURL, token string) Message {
	link := token
	if strings.TrimSpace(verifyURL) != "" {
		link = strings.TrimRight(verifyURL, "/") + "?token=" + token
	}
	return Message{
		To:      to,
		Subject: "Confirm your Plot Ark account",
		HTML: fmt.Sprintf(
			"<p>Welcome to Plot Ark!</p><p>Confirm your email within one hour: <a href=%q>%s</a></p>",
			link, link,
		),
	}
}
