package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/sirupsen/logrus"
)

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// KafkaNotifier queues rendered itineraries on the notifications topic for
// the worker to deliver.
type KafkaNotifier struct {
	producer Producer
	topic    string
	renderer *Renderer
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewKafkaNotifier(producer Producer, topic string, renderer *Renderer, logger logrus.FieldLogger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		renderer: renderer,
		log:      logger,
		now:      time.Now,
	}
}

func (n *KafkaNotifier) NotifyItinerary(ctx context.Context, b *domain.Booking) error {
	to := b.ContactEmail
	if to == "" && b.Identity != nil {
		to = b.Identity.Email
	}
	if to == "" {
		return fmt.Errorf("booking %s has no contact email", b.Reference)
	}

	subject, body, err := n.renderer.Itinerary(b)
	if err != nil {
		return err
	}

	msg := kafka.Notification{
		Type:      "itinerary",
		BookingID: b.ID.String(),
		Reference: b.Reference,
		Email:     to,
		Subject:   subject,
		Body:      body,
		CreatedAt: n.now().UTC(),
	}
	if err := n.producer.Publish(ctx, n.topic, b.ID.String(), msg); err != nil {
		return fmt.Errorf("failed to queue itinerary: %w", err)
	}
	n.log.WithFields(logrus.Fields{"booking_id": b.ID, "email": to}).Debug("itinerary queued")
	return nil
}
