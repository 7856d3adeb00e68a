// Package email delivers queued notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/sirupsen/logrus"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg  config.EmailConfig
	log  logrus.FieldLogger
	send sendFunc
}

func NewSender(cfg config.EmailConfig, logger logrus.FieldLogger) *Sender {
	return &Sender{cfg: cfg, log: logger, send: smtp.SendMail}
}

func (s *Sender) Send(ctx context.Context, n kafka.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Email == "" {
		return fmt.Errorf("notification for booking %s has no recipient", n.BookingID)
	}

	entry := s.log.WithFields(logrus.Fields{"booking_id": n.BookingID, "email": n.Email, "type": n.Type})
	if s.cfg.SMTPHost == "" {
		entry.WithField("subject", n.Subject).Info("smtp not configured, notification logged only")
		return nil
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	addr := s.cfg.SMTPHost + ":" + strconv.Itoa(s.cfg.SMTPPort)
	if err := s.send(addr, auth, s.cfg.From, []string{n.Email}, buildMessage(s.cfg.From, n)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	entry.Info("notification sent")
	return nil
}

func buildMessage(from string, n kafka.Notification) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + n.Email + "\r\n")
	b.WriteString("Subject: " + n.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))
	return []byte(b.String())
}
