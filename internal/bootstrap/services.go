package bootstrap

import (
	"context"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/cache"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/Domenick1991/airticket/internal/notify"
	"github.com/Domenick1991/airticket/internal/service/booking"
	"github.com/Domenick1991/airticket/internal/service/checkout"
	"github.com/Domenick1991/airticket/internal/service/flights"
	"github.com/Domenick1991/airticket/internal/service/identity"
	"github.com/Domenick1991/airticket/internal/service/payment"
	"github.com/Domenick1991/airticket/internal/service/refund"
	"github.com/Domenick1991/airticket/internal/service/seating"
	"github.com/sirupsen/logrus"
)

// Services is the wired service graph shared by the API and the worker.
type Services struct {
	Bookings  *booking.BookingService
	Flights   *flights.FlightService
	Allocator *seating.Allocator
	Payments  *payment.PaymentService
	Checkout  *checkout.CheckoutService
	Refunds   *refund.RefundService

	closers []func() error
}

func (s *Services) Close(logger logrus.FieldLogger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
}

// NewServices connects Kafka and Redis and builds every service over store.
// Redis is optional: without it flights are read uncached and seat claims
// are skipped.
func NewServices(ctx context.Context, cfg *config.Config, store *Storage, logger logrus.FieldLogger) *Services {
	s := &Services{}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	s.closers = append(s.closers, producer.Close)
	if err := producer.CheckConnection(ctx); err != nil {
		logger.WithError(err).Warn("kafka unreachable, events will fail until it recovers")
	}

	var (
		flightCache flights.FlightCache
		allocOpts   []seating.Option
	)
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.FlightsCacheTTL)*time.Second)
	s.closers = append(s.closers, redisCache.Close)
	if err := redisCache.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis unreachable, running without flight cache and seat claims")
	} else {
		flightCache = redisCache
		allocOpts = append(allocOpts, seating.WithSeatClaims(redisCache, time.Duration(cfg.Booking.SeatClaimTTL)*time.Second))
	}

	resolver := identity.NewResolver(store.Identities, logger)
	s.Bookings = booking.NewBookingService(
		store.Bookings,
		store.Flights,
		store.Allocations,
		store.Refunds,
		resolver,
		logger,
		booking.WithTxManager(store.Tx),
		booking.WithEvents(producer, cfg.Kafka.BookingEventsTopic),
		booking.WithReferenceAttempts(cfg.Booking.ReferenceAttempts),
	)
	s.Flights = flights.NewFlightService(store.Flights, store.Seats, flightCache, logger)
	s.Allocator = seating.NewAllocator(store.Bookings, store.Flights, store.Seats, store.Allocations, logger, allocOpts...)

	notifier := notify.NewKafkaNotifier(producer.Retrying(3), cfg.Kafka.NotificationsTopic, notify.NewRenderer(cfg.Gateway.Currency), logger)
	s.Payments = payment.NewPaymentService(store.Payments, store.Tx, s.Bookings, logger,
		payment.WithSeatAllocator(s.Allocator),
		payment.WithNotifier(notifier),
	)
	s.Checkout = checkout.NewCheckoutService(gateway.NewClient(cfg.Gateway, logger), s.Bookings, s.Payments, store.Payments, logger)
	s.Refunds = refund.NewRefundService(store.Refunds, s.Bookings, s.Payments, store.Tx, logger,
		refund.WithDelayQualifies(cfg.Refund.DelayQualifies),
		refund.WithEvents(producer, cfg.Kafka.RefundEventsTopic),
	)
	return s
}
