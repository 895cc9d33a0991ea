// Package mailer delivers plain-text email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings and the sender identity.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
}

// Email is one outgoing message.
type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// SMTP sends email through an SMTP relay. A connection is dialled per message.
type SMTP struct {
	from     string
	fromName string
	send     func(msgs ...*gomail.Message) error
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(cfg Config) *SMTP {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &SMTP{from: cfg.FromAddress, fromName: cfg.FromName, send: d.DialAndSend}
}

// NewWithSender creates a mailer that hands messages to s instead of dialling a relay.
func NewWithSender(s gomail.Sender, fromAddress, fromName string) *SMTP {
	return &SMTP{
		from:     fromAddress,
		fromName: fromName,
		send:     func(msgs ...*gomail.Message) error { return gomail.Send(s, msgs...) },
	}
}

// Send delivers e. gomail does not take a context, so ctx is only checked before dialling.
func (s *SMTP) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return errors.New("missing recipient address")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	if e.ToName != "" {
		m.SetAddressHeader("To", e.To, e.ToName)
	} else {
		m.SetHeader("To", e.To)
	}
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/plain", e.Body)
	if err := s.send(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
