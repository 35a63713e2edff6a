package email

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Domain   string `yaml:"domain"`
}

// SMTPTransport sends mail through an SMTP relay. SMTP does not hand back a
// provider id, so a Message-ID header is generated and returned instead.
type SMTPTransport struct {
	dialer *gomail.Dialer
	domain string
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	domain := cfg.Domain
	if domain == "" {
		domain = cfg.Host
	}
	return &SMTPTransport{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		domain: domain,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), t.domain)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", msg.HTML)

	if err := t.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return messageID, nil
}
