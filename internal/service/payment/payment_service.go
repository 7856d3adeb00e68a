// Package payment owns the payment state machine. TransitionTo is the single
// writer of payment status for every entry point: staff overrides, gateway
// callbacks, client returns and reconciliation.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type PaymentUseCase interface {
	Create(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Payment, error)
	// TransitionTo moves a payment to status. Repeating a transition that
	// already happened returns the payment unchanged without error.
	TransitionTo(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error)
}

// Ledger is the booking side of a payment transition.
type Ledger interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error)
}

type SeatAllocator interface {
	AllocateBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.SeatAllocation, error)
}

type Notifier interface {
	NotifyItinerary(ctx context.Context, booking *domain.Booking) error
}

type CreatePaymentInput struct {
	BookingID uuid.UUID            `json:"booking_id"`
	Amount    int64                `json:"amount"`
	Method    domain.PaymentMethod `json:"method"`
}

type PaymentService struct {
	payments repository.PaymentRepository
	tx       repository.TxManager
	ledger   Ledger
	log      logrus.FieldLogger

	allocator     SeatAllocator
	notifier      Notifier
	dispatch      func(func())
	notifyTimeout time.Duration
	now           func() time.Time
}

type Option func(*PaymentService)

func WithSeatAllocator(allocator SeatAllocator) Option {
	return func(s *PaymentService) {
		s.allocator = allocator
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(s *PaymentService) {
		s.notifier = notifier
	}
}

// WithDispatcher replaces the goroutine that runs post-payment notification.
func WithDispatcher(dispatch func(func())) Option {
	return func(s *PaymentService) {
		s.dispatch = dispatch
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) {
		s.now = now
	}
}

func NewPaymentService(payments repository.PaymentRepository, tx repository.TxManager, ledger Ledger, logger logrus.FieldLogger, opts ...Option) *PaymentService {
	s := &PaymentService{
		payments:      payments,
		tx:            tx,
		ledger:        ledger,
		log:           logger,
		dispatch:      func(fn func()) { go fn() },
		notifyTimeout: 30 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PaymentService) Create(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error) {
	booking, err := s.ledger.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, apperr.NotAllowedErr("booking %s is cancelled", booking.Reference)
	}
	if booking.PaymentStatus == domain.BookingPaymentPaid {
		return nil, apperr.ConflictErr("booking %s is already paid", booking.Reference)
	}

	amount := input.Amount
	if amount == 0 {
		amount = booking.TotalAmount
	}
	if amount < 0 {
		return nil, apperr.InvalidErr("amount must be positive")
	}
	method := input.Method
	if method == "" {
		method = domain.PaymentMethodGateway
	}
	switch method {
	case domain.PaymentMethodGateway, domain.PaymentMethodCard, domain.PaymentMethodCash:
	default:
		return nil, apperr.InvalidErr("unknown payment method %q", method)
	}

	payment := &domain.Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Amount:    amount,
		Method:    method,
		Status:    domain.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, apperr.InternalErr(err, "failed to create payment")
	}
	s.log.WithFields(logrus.Fields{"payment_id": payment.ID, "booking_id": booking.ID, "amount": amount}).Info("payment created")
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("payment %s not found", id)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load payment")
	}
	return payment, nil
}

func (s *PaymentService) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Payment, error) {
	if _, err := s.ledger.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list payments")
	}
	return payments, nil
}

func (s *PaymentService) TransitionTo(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error) {
	if !status.Valid() {
		return nil, apperr.InvalidErr("unknown payment status %q", status)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if !domain.CanMovePayment(current.Status, status) {
		return nil, apperr.InvalidTransitionErr("payment %s cannot move from %s to %s", id, current.Status, status)
	}

	if status == domain.PaymentStatusCompleted && update.PaidAt == nil {
		paidAt := s.now().UTC()
		update.PaidAt = &paidAt
	}

	var (
		result  *domain.Payment
		changed bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, ok, err := s.payments.Transition(ctx, id, current.Status, status, update)
		if err != nil {
			return apperr.InternalErr(err, "failed to update payment")
		}
		result, changed = p, ok
		if !ok {
			// Another caller moved the payment first.
			if p.Status == status {
				return nil
			}
			return apperr.InvalidTransitionErr("payment %s is already %s", id, p.Status)
		}
		return s.applyToBooking(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{"payment_id": id, "booking_id": result.BookingID, "status": result.Status})
	if !changed {
		entry.Info("payment transition already applied")
		return result, nil
	}
	entry.Info("payment status changed")

	if status == domain.PaymentStatusCompleted {
		s.afterCompleted(ctx, result)
	}
	return result, nil
}

// applyToBooking runs inside the transition's transaction.
func (s *PaymentService) applyToBooking(ctx context.Context, p *domain.Payment) error {
	switch p.Status {
	case domain.PaymentStatusCompleted:
		completed, paid := domain.BookingStatusCompleted, domain.BookingPaymentPaid
		_, err := s.ledger.UpdateStatus(ctx, p.BookingID, &completed, &paid)
		if apperr.Is(err, apperr.InvalidTransition) {
			// The booking was cancelled while the payment was in flight.
			s.log.WithFields(logrus.Fields{"payment_id": p.ID, "booking_id": p.BookingID}).Warn("payment completed for cancelled booking, recording as paid only")
			_, err = s.ledger.UpdateStatus(ctx, p.BookingID, nil, &paid)
		}
		return err

	case domain.PaymentStatusFailed:
		booking, err := s.ledger.GetBooking(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if booking.PaymentStatus != domain.BookingPaymentPending {
			return nil
		}
		failed := domain.BookingPaymentFailed
		_, err = s.ledger.UpdateStatus(ctx, p.BookingID, nil, &failed)
		return err

	case domain.PaymentStatusRefunded:
		refunded := domain.BookingPaymentRefunded
		_, err := s.ledger.UpdateStatus(ctx, p.BookingID, nil, &refunded)
		return err
	}
	return nil
}

// afterCompleted seats the passengers and sends the itinerary. Neither step
// can undo the payment.
func (s *PaymentService) afterCompleted(ctx context.Context, p *domain.Payment) {
	entry := s.log.WithFields(logrus.Fields{"payment_id": p.ID, "booking_id": p.BookingID})

	booking, err := s.ledger.GetBooking(ctx, p.BookingID)
	if err != nil {
		entry.WithError(err).Warn("failed to load booking after payment")
		return
	}
	if booking.Status == domain.BookingStatusCancelled {
		return
	}

	if s.allocator != nil {
		allocs, err := s.allocator.AllocateBooking(ctx, p.BookingID)
		if err != nil {
			entry.WithError(err).Warn("seat allocation incomplete after payment")
		}
		if len(allocs) > 0 {
			entry.WithField("seats", len(allocs)).Info("seats allocated after payment")
			if booking, err = s.ledger.GetBooking(ctx, p.BookingID); err != nil {
				entry.WithError(err).Warn("failed to reload booking after allocation")
				return
			}
		}
	}

	if s.notifier == nil {
		return
	}
	s.dispatch(func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyItinerary(nctx, booking); err != nil {
			entry.WithError(err).Warn("failed to send itinerary")
			return
		}
		entry.Info("itinerary sent")
	})
}

var _ PaymentUseCase = (*PaymentService)(nil)
