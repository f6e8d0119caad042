// Package notify provides the outbound operational alerting channels. Both
// channels are best-effort: callers log failures and move on, the ingestion
// pipeline never fails because an alert could not be delivered.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends operational alert emails over SMTP
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewMailer creates an SMTP mailer
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// IsConfigured returns true if an SMTP host is set
func (m *Mailer) IsConfigured() bool {
	return m.host != ""
}

// Send delivers one plain-text email to the given recipients
func (m *Mailer) Send(subject, body string, recipients []string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("SMTP host is not configured")
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients given")
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(addr, auth, m.from, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
