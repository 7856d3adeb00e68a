package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateReference  = errors.New("booking reference already exists")
	ErrSeatTaken           = errors.New("seat already allocated on this flight")
	ErrPassengerSeated     = errors.New("passenger already has a seat on this leg")
	ErrPendingRefundExists = errors.New("booking already has a pending refund request")
	ErrDuplicateOrderID    = errors.New("gateway order id already exists")
	ErrBookingCancelled    = errors.New("booking is cancelled")
	ErrPaymentNotSettled   = errors.New("booking has no settled payment")
)

// TxManager runs fn inside one storage transaction. Repositories called with
// the ctx handed to fn take part in that transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type IdentityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// CreateIfAbsent inserts identity unless one with the same email exists,
	// and returns whichever row is stored. created is false for an existing row.
	CreateIfAbsent(ctx context.Context, identity *domain.Identity) (stored *domain.Identity, created bool, err error)
}

type FlightRepository interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
}

type SeatRepository interface {
	GetByNumber(ctx context.Context, aircraftID int64, seatNumber string) (*domain.Seat, error)
	// ListFree returns seats of class on the aircraft with no allocation on
	// flightID, ordered by row then letter. An empty class matches all.
	ListFree(ctx context.Context, flightID, aircraftID int64, class domain.TravelClass, limit int) ([]domain.Seat, error)
}

type BookingRepository interface {
	// Create stores the booking with its legs and passengers.
	Create(ctx context.Context, booking *domain.Booking) error
	// GetByID loads the booking with legs, allocations, passengers and payments.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	// ListByIdentity returns bookings with their legs only, newest first.
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.Booking, error)
	// UpdateStatus writes whichever of the two statuses is non-nil. Moving a
	// cancelled booking to another status fails with ErrBookingCancelled.
	// Paid needs a completed payment and Refunded a completed or refunded
	// one, otherwise it fails with ErrPaymentNotSettled.
	UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error)
	UpdateContact(ctx context.Context, id uuid.UUID, email, phone string) (*domain.Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetBookingFlight(ctx context.Context, id uuid.UUID) (*domain.BookingFlight, error)
}

type AllocationRepository interface {
	// Create fails with ErrSeatTaken or ErrPassengerSeated when the storage
	// uniqueness constraints reject the row.
	Create(ctx context.Context, allocation *domain.SeatAllocation) error
	ListByBookingFlight(ctx context.Context, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error)
	IsSeatTaken(ctx context.Context, flightID, seatID int64) (bool, error)
	DeleteByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// GetByGatewayOrderID finds the payment through any order it was ever
	// sent under, not only the latest.
	GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	ListGatewayOrders(ctx context.Context, paymentID uuid.UUID) ([]domain.GatewayOrder, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Payment, error)
	// ListAwaitingGateway returns pending payments that were sent to the
	// gateway before the given time.
	ListAwaitingGateway(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
	// SetGatewayRequest makes orderID the current order of a pending payment
	// and adds it to the payment's order history.
	SetGatewayRequest(ctx context.Context, id uuid.UUID, orderID, requestID string) error
	SaveGatewayResponse(ctx context.Context, id uuid.UUID, raw string) error
	// Transition moves the payment from one status to another only if it is
	// still in from. changed is false when the stored status differed; the
	// stored payment is returned either way.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, update domain.PaymentUpdate) (payment *domain.Payment, changed bool, err error)
}

type RefundRepository interface {
	// Create fails with ErrPendingRefundExists when the booking already has a
	// pending request.
	Create(ctx context.Context, refund *domain.RefundHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundHistory, error)
	List(ctx context.Context) ([]domain.RefundHistory, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.RefundHistory, error)
	// Decide moves a pending refund to status. changed is false when the
	// refund had already left Pending.
	Decide(ctx context.Context, id uuid.UUID, status domain.RefundStatus, notes, actor string, processedAt *time.Time) (refund *domain.RefundHistory, changed bool, err error)
}
