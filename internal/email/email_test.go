package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification() kafka.Notification {
	return kafka.Notification{
		Type:      "itinerary",
		BookingID: "b-1",
		Email:     "lan@example.com",
		Subject:   "Your itinerary for booking K7QX2ABC",
		Body:      "line one\nline two",
	}
}

func TestSender_Send(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSender(config.EmailConfig{SMTPHost: "smtp.example", SMTPPort: 2525, From: "no-reply@example.com", Username: "u", Password: "p"}, logger)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), notification()))
	assert.Equal(t, "smtp.example:2525", gotAddr)
	assert.Equal(t, []string{"lan@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your itinerary for booking K7QX2ABC\r\n")
	assert.Contains(t, gotMsg, "line one\r\nline two")
}

func TestSender_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSender(config.EmailConfig{SMTPHost: "smtp.example", SMTPPort: 25}, logger)
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay refused") }

	assert.ErrorContains(t, s.Send(context.Background(), notification()), "relay refused")

	n := notification()
	n.Email = ""
	assert.Error(t, s.Send(context.Background(), n))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, notification()), context.Canceled)
}

func TestSender_NoRelayLogsOnly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewSender(config.EmailConfig{}, logger)

	require.NoError(t, s.Send(context.Background(), notification()))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "smtp not configured, notification logged only", hook.LastEntry().Message)
}
