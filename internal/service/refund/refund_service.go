// Package refund runs refund requests from submission to a staff decision.
package refund

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RefundUseCase interface {
	Request(ctx context.Context, input RequestInput) (*domain.RefundHistory, error)
	Decide(ctx context.Context, id uuid.UUID, input DecideInput) (*domain.RefundHistory, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.RefundHistory, error)
	List(ctx context.Context) ([]domain.RefundHistory, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.RefundHistory, error)
}

type Ledger interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error)
}

type PaymentTransitioner interface {
	TransitionTo(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// RequestInput names the booking by id or by reference.
type RequestInput struct {
	BookingID        *uuid.UUID          `json:"booking_id,omitempty"`
	BookingReference string              `json:"booking_reference,omitempty"`
	Reason           domain.RefundReason `json:"reason"`
	Amount           int64               `json:"amount"`
	RequesterName    string              `json:"requester_name"`
	RequesterEmail   string              `json:"requester_email"`
	RequesterPhone   string              `json:"requester_phone"`
}

type DecideInput struct {
	Status domain.RefundStatus `json:"status"`
	Notes  string              `json:"notes"`
	Actor  string              `json:"-"`
}

type RefundService struct {
	refunds  repository.RefundRepository
	ledger   Ledger
	payments PaymentTransitioner
	tx       repository.TxManager
	log      logrus.FieldLogger

	delayQualifies bool
	producer       Producer
	eventsTopic    string
	now            func() time.Time
}

type Option func(*RefundService)

// WithDelayQualifies lets an airline delay on any leg make a booking eligible.
func WithDelayQualifies(v bool) Option {
	return func(s *RefundService) {
		s.delayQualifies = v
	}
}

func WithEvents(producer Producer, topic string) Option {
	return func(s *RefundService) {
		s.producer = producer
		s.eventsTopic = topic
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *RefundService) {
		s.now = now
	}
}

func NewRefundService(refunds repository.RefundRepository, ledger Ledger, payments PaymentTransitioner, tx repository.TxManager, logger logrus.FieldLogger, opts ...Option) *RefundService {
	s := &RefundService{
		refunds:  refunds,
		ledger:   ledger,
		payments: payments,
		tx:       tx,
		log:      logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RefundService) Request(ctx context.Context, input RequestInput) (*domain.RefundHistory, error) {
	booking, err := s.resolveBooking(ctx, input)
	if err != nil {
		return nil, err
	}

	reason, ok := s.eligibility(booking)
	if !ok {
		return nil, apperr.NotAllowedErr("booking %s is not eligible for a refund; cancel it first", booking.Reference)
	}
	if input.Reason != "" {
		if !input.Reason.Valid() {
			return nil, apperr.InvalidErr("unknown refund reason %q", input.Reason)
		}
		reason = input.Reason
	}

	amount := input.Amount
	if amount == 0 {
		amount = booking.TotalAmount
	}
	if amount < 0 || amount > booking.TotalAmount {
		return nil, apperr.InvalidErr("refund amount must be between 1 and %d", booking.TotalAmount)
	}

	name := strings.TrimSpace(input.RequesterName)
	if name == "" && booking.Identity != nil {
		name = strings.TrimSpace(booking.Identity.FirstName + " " + booking.Identity.LastName)
	}
	email := strings.TrimSpace(input.RequesterEmail)
	if email == "" {
		email = booking.ContactEmail
	}

	refund := &domain.RefundHistory{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		Reason:           reason,
		Amount:           amount,
		RequesterName:    name,
		RequesterEmail:   email,
		RequesterPhone:   strings.TrimSpace(input.RequesterPhone),
		Status:           domain.RefundStatusPending,
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		if errors.Is(err, repository.ErrPendingRefundExists) {
			return nil, apperr.ConflictErr("booking %s already has a pending refund request", booking.Reference)
		}
		return nil, apperr.InternalErr(err, "failed to create refund request")
	}

	s.log.WithFields(logrus.Fields{"refund_id": refund.ID, "booking_id": booking.ID, "reason": reason}).Info("refund requested")
	s.publish(ctx, "refund_requested", refund)
	return refund, nil
}

func (s *RefundService) resolveBooking(ctx context.Context, input RequestInput) (*domain.Booking, error) {
	if input.BookingID != nil {
		return s.ledger.GetBooking(ctx, *input.BookingID)
	}
	if strings.TrimSpace(input.BookingReference) != "" {
		return s.ledger.GetBookingByReference(ctx, input.BookingReference)
	}
	return nil, apperr.InvalidErr("booking id or reference is required")
}

// eligibility returns the reason implied by the booking's state, and false
// when the booking is neither cancelled nor on a disrupted flight.
func (s *RefundService) eligibility(booking *domain.Booking) (domain.RefundReason, bool) {
	for _, leg := range booking.Legs {
		if leg.Flight == nil || !leg.Flight.Disrupted(s.delayQualifies) {
			continue
		}
		if leg.Flight.Status == domain.FlightStatusCancelled {
			return domain.RefundReasonFlightCancelled, true
		}
		return domain.RefundReasonFlightDelayed, true
	}
	if booking.Status == domain.BookingStatusCancelled {
		return domain.RefundReasonCustomerCancelled, true
	}
	return "", false
}

func (s *RefundService) Decide(ctx context.Context, id uuid.UUID, input DecideInput) (*domain.RefundHistory, error) {
	switch input.Status {
	case domain.RefundStatusApproved, domain.RefundStatusRejected:
	default:
		return nil, apperr.InvalidErr("refund can only be approved or rejected")
	}

	var decided *domain.RefundHistory
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			actor       string
			processedAt *time.Time
		)
		if input.Status == domain.RefundStatusApproved {
			now := s.now().UTC()
			actor, processedAt = input.Actor, &now
		}

		refund, changed, err := s.refunds.Decide(ctx, id, input.Status, input.Notes, actor, processedAt)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundErr("refund %s not found", id)
		}
		if err != nil {
			return apperr.InternalErr(err, "failed to decide refund")
		}
		if !changed {
			return apperr.InvalidTransitionErr("refund %s is already %s", id, refund.Status)
		}
		decided = refund

		if input.Status == domain.RefundStatusApproved {
			return s.refundBooking(ctx, refund.BookingID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"refund_id": id, "booking_id": decided.BookingID, "status": decided.Status}).Info("refund decided")
	s.publish(ctx, "refund_"+strings.ToLower(string(decided.Status)), decided)
	return decided, nil
}

// refundBooking marks the booking refunded and reverses its completed
// payments. The booking status itself is left alone.
func (s *RefundService) refundBooking(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if !booking.WasPaid() {
		return apperr.NotAllowedErr("booking %s was never paid, reject the refund instead", booking.Reference)
	}
	for _, p := range booking.Payments {
		if p.Status != domain.PaymentStatusCompleted {
			continue
		}
		if _, err := s.payments.TransitionTo(ctx, p.ID, domain.PaymentStatusRefunded, domain.PaymentUpdate{Message: "refund approved"}); err != nil {
			return err
		}
	}
	refunded := domain.BookingPaymentRefunded
	_, err = s.ledger.UpdateStatus(ctx, bookingID, nil, &refunded)
	return err
}

func (s *RefundService) Get(ctx context.Context, id uuid.UUID) (*domain.RefundHistory, error) {
	refund, err := s.refunds.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("refund %s not found", id)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load refund")
	}
	return refund, nil
}

func (s *RefundService) List(ctx context.Context) ([]domain.RefundHistory, error) {
	refunds, err := s.refunds.List(ctx)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list refunds")
	}
	return refunds, nil
}

func (s *RefundService) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.RefundHistory, error) {
	if _, err := s.ledger.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list refunds")
	}
	return refunds, nil
}

func (s *RefundService) publish(ctx context.Context, eventType string, refund *domain.RefundHistory) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	event := kafka.RefundEvent{
		Type:       eventType,
		RefundID:   refund.ID.String(),
		BookingID:  refund.BookingID.String(),
		Status:     string(refund.Status),
		Amount:     refund.Amount,
		DecidedBy:  refund.ProcessedBy,
		OccurredAt: s.now().UTC(),
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, refund.BookingID.String(), event); err != nil {
		s.log.WithFields(logrus.Fields{"refund_id": refund.ID, "event": eventType}).WithError(err).Warn("failed to publish refund event")
	}
}

var _ RefundUseCase = (*RefundService)(nil)
