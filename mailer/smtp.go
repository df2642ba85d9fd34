// Package mailer delivers one-time codes over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	authservice "github.com/Matidza/Auth-Service"
)

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Encryption is "ssl" for implicit TLS; anything else uses STARTTLS when
	// the server offers it.
	Encryption string
}

// SMTPNotifier implements authservice.Notifier with gomail.
type SMTPNotifier struct {
	from   string
	sender Sender
	log    *zap.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, log *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, fmt.Errorf("SMTP host, port, and sender email must be configured")
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if strings.EqualFold(cfg.Encryption, "ssl") {
		dialer.SSL = true
	}
	return NewNotifier(cfg.From, dialer, log), nil
}

// NewNotifier builds a notifier around an existing sender.
func NewNotifier(from string, sender Sender, log *zap.Logger) *SMTPNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPNotifier{from: from, sender: sender, log: log.Named("mailer")}
}

// SendCode delivers msg. The recipient counts as accepted once the SMTP
// server has taken the message; a rejected RCPT fails the whole send.
func (n *SMTPNotifier) SendCode(ctx context.Context, msg authservice.CodeMessage) (authservice.Delivery, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject())
	m.SetBody("text/plain", msg.Body())

	done := make(chan error, 1)
	go func() {
		done <- n.sender.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		n.log.Warn("email sending cancelled", zap.String("subject", msg.Subject()), zap.Error(ctx.Err()))
		return authservice.Delivery{}, fmt.Errorf("email sending cancelled or timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			n.log.Error("failed to send email", zap.String("subject", msg.Subject()), zap.Error(err))
			return authservice.Delivery{}, fmt.Errorf("failed to send email: %w", err)
		}
	}

	n.log.Info("email sent", zap.String("subject", msg.Subject()))
	return authservice.Delivery{Accepted: []string{msg.To}}, nil
}
