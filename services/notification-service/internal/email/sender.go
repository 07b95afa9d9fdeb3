package email

import (
	"context"
	"strings"

	"github.com/go-gomail/gomail"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SSL forces implicit TLS. Port 465 always uses it.
	SSL bool
}

// SMTPSender delivers plain-text mail. Without credentials it talks to an
// unauthenticated relay such as Mailpit.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		from = "no-reply@hospital.local"
	}
	d := gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, strings.TrimSpace(cfg.Username), cfg.Password)
	d.SSL = cfg.SSL || cfg.Port == 465
	return &SMTPSender{dialer: d, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(s.compose(msg))
}

func (s *SMTPSender) compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return m
}
