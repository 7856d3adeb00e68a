package booking

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

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetBookingsByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.Booking, error)
	GetBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error)
	GuestLookup(ctx context.Context, email, reference string) (*LookupResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error)
	UpdateContact(ctx context.Context, id uuid.UUID, input UpdateContactInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
}

// IdentityResolver finds or creates the owner of a new booking.
type IdentityResolver interface {
	Resolve(ctx context.Context, id *uuid.UUID, email string) (*domain.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings    repository.BookingRepository
	flights     repository.FlightRepository
	allocations repository.AllocationRepository
	refunds     repository.RefundRepository
	identities  IdentityResolver
	tx          repository.TxManager
	log         logrus.FieldLogger

	producer    Producer
	eventsTopic string

	referenceAttempts int
	newReference      func() (string, error)
	now               func() time.Time
}

type CreateBookingInput struct {
	IdentityID   *uuid.UUID       `json:"identity_id,omitempty"`
	ContactEmail string           `json:"contact_email"`
	ContactPhone string           `json:"contact_phone"`
	Legs         []LegInput       `json:"legs"`
	Passengers   []PassengerInput `json:"passengers"`
}

type LegInput struct {
	FlightID        int64                 `json:"flight_id"`
	TravelClass     domain.TravelClass    `json:"travel_class"`
	FareAmount      int64                 `json:"fare_amount"`
	BaggageKg       int                   `json:"baggage_kg"`
	SeatPreferences []SeatPreferenceInput `json:"seat_preferences,omitempty"`
}

// SeatPreferenceInput names a passenger by position in the passengers list.
type SeatPreferenceInput struct {
	PassengerIndex int    `json:"passenger_index"`
	SeatNumber     string `json:"seat_number"`
}

type PassengerInput struct {
	Type        domain.PassengerType `json:"type"`
	FirstName   string               `json:"first_name"`
	LastName    string               `json:"last_name"`
	DateOfBirth *time.Time           `json:"date_of_birth,omitempty"`
	Document    string               `json:"document,omitempty"`
}

type UpdateContactInput struct {
	ContactEmail *string `json:"contact_email,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty"`
}

// LookupResult holds summaries for an email-only lookup, or one full
// booking when a reference was supplied.
type LookupResult struct {
	Summaries []domain.BookingSummary
	Booking   *domain.Booking
}

type BookingServiceOption func(*BookingService)

// WithEvents publishes booking lifecycle events to topic.
func WithEvents(producer Producer, topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.eventsTopic = topic
	}
}

// WithTxManager makes cancellation update the status and release seats in
// one transaction.
func WithTxManager(tx repository.TxManager) BookingServiceOption {
	return func(s *BookingService) {
		s.tx = tx
	}
}

func WithReferenceAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.referenceAttempts = n
		}
	}
}

func WithReferenceGenerator(gen func() (string, error)) BookingServiceOption {
	return func(s *BookingService) {
		s.newReference = gen
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	flights repository.FlightRepository,
	allocations repository.AllocationRepository,
	refunds repository.RefundRepository,
	identities IdentityResolver,
	logger logrus.FieldLogger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:          bookings,
		flights:           flights,
		allocations:       allocations,
		refunds:           refunds,
		identities:        identities,
		tx:                directTx{},
		log:               logger,
		referenceAttempts: 5,
		newReference:      GenerateReference,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	for _, leg := range input.Legs {
		if _, err := s.flights.GetByID(ctx, leg.FlightID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFoundErr("flight %d not found", leg.FlightID)
			}
			return nil, apperr.InternalErr(err, "failed to load flight")
		}
	}

	identity, err := s.identities.Resolve(ctx, input.IdentityID, input.ContactEmail)
	if err != nil {
		return nil, err
	}

	booking := buildBooking(input, identity)
	for attempt := 1; ; attempt++ {
		ref, err := s.newReference()
		if err != nil {
			return nil, apperr.InternalErr(err, "failed to generate booking reference")
		}
		booking.Reference = ref

		err = s.bookings.Create(ctx, booking)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateReference) {
			return nil, apperr.InternalErr(err, "failed to create booking")
		}
		if attempt >= s.referenceAttempts {
			return nil, apperr.ConflictErr("could not allocate a unique booking reference")
		}
		s.log.WithFields(logrus.Fields{"reference": ref, "attempt": attempt}).Warn("booking reference collision, regenerating")
	}

	booking.Identity = identity
	s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "reference": booking.Reference}).Info("booking created")
	s.publish(ctx, "booking_created", booking)
	return booking, nil
}

func validateCreate(input CreateBookingInput) error {
	if len(input.Legs) == 0 {
		return apperr.InvalidErr("at least one flight leg is required")
	}
	if len(input.Passengers) == 0 {
		return apperr.InvalidErr("at least one passenger is required")
	}
	if strings.TrimSpace(input.ContactEmail) == "" {
		return apperr.InvalidErr("contact email is required")
	}
	for i, p := range input.Passengers {
		if !p.Type.Valid() {
			return apperr.InvalidErr("passenger %d has unknown type %q", i, p.Type)
		}
		if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
			return apperr.InvalidErr("passenger %d needs first and last name", i)
		}
	}
	for i, leg := range input.Legs {
		if !leg.TravelClass.Valid() {
			return apperr.InvalidErr("leg %d has unknown travel class %q", i, leg.TravelClass)
		}
		if leg.FareAmount < 0 || leg.BaggageKg < 0 {
			return apperr.InvalidErr("leg %d has a negative fare or baggage allowance", i)
		}
		seen := make(map[string]bool)
		for _, pref := range leg.SeatPreferences {
			if pref.PassengerIndex < 0 || pref.PassengerIndex >= len(input.Passengers) {
				return apperr.InvalidErr("leg %d seat preference names passenger %d which does not exist", i, pref.PassengerIndex)
			}
			if !input.Passengers[pref.PassengerIndex].Type.NeedsSeat() {
				return apperr.InvalidErr("infants cannot hold a seat preference")
			}
			seat := strings.ToUpper(strings.TrimSpace(pref.SeatNumber))
			if seat == "" {
				return apperr.InvalidErr("leg %d seat preference is empty", i)
			}
			if seen[seat] {
				return apperr.InvalidErr("leg %d asks for seat %s twice", i, seat)
			}
			seen[seat] = true
		}
	}
	return nil
}

func buildBooking(input CreateBookingInput, identity *domain.Identity) *domain.Booking {
	booking := &domain.Booking{
		ID:            uuid.New(),
		IdentityID:    identity.ID,
		Status:        domain.BookingStatusReserved,
		PaymentStatus: domain.BookingPaymentPending,
		ContactEmail:  strings.TrimSpace(input.ContactEmail),
		ContactPhone:  strings.TrimSpace(input.ContactPhone),
	}

	for _, p := range input.Passengers {
		booking.Passengers = append(booking.Passengers, domain.Passenger{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			Type:        p.Type,
			FirstName:   strings.TrimSpace(p.FirstName),
			LastName:    strings.TrimSpace(p.LastName),
			DateOfBirth: p.DateOfBirth,
			Document:    p.Document,
		})
	}

	for _, leg := range input.Legs {
		bf := domain.BookingFlight{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			FlightID:    leg.FlightID,
			TravelClass: leg.TravelClass,
			FareAmount:  leg.FareAmount,
			BaggageKg:   leg.BaggageKg,
		}
		for _, pref := range leg.SeatPreferences {
			bf.SeatPreferences = append(bf.SeatPreferences, domain.SeatPreference{
				PassengerID: booking.Passengers[pref.PassengerIndex].ID,
				SeatNumber:  strings.ToUpper(strings.TrimSpace(pref.SeatNumber)),
			})
		}
		booking.TotalAmount += leg.FareAmount
		booking.Legs = append(booking.Legs, bf)
	}
	return booking
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingErr(err, id)
	}
	if err := s.attach(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	booking, err := s.bookings.GetByReference(ctx, reference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("booking %s not found", reference)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load booking")
	}
	if err := s.attach(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// attach loads the owning identity and the flight of every leg.
func (s *BookingService) attach(ctx context.Context, booking *domain.Booking) error {
	identity, err := s.identities.GetByID(ctx, booking.IdentityID)
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		return err
	}
	booking.Identity = identity

	for i := range booking.Legs {
		flight, err := s.flights.GetByID(ctx, booking.Legs[i].FlightID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return apperr.InternalErr(err, "failed to load flight")
		}
		booking.Legs[i].Flight = flight
	}
	return nil
}

func (s *BookingService) GetBookingsByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.Booking, error) {
	if _, err := s.identities.GetByID(ctx, identityID); err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list bookings")
	}
	return bookings, nil
}

func (s *BookingService) GetBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByIdentity(ctx, identity.ID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list bookings")
	}
	return bookings, nil
}

// GuestLookup never lets a reference unlock a booking owned by another
// identity; such a mismatch reads as not found.
func (s *BookingService) GuestLookup(ctx context.Context, email, reference string) (*LookupResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.InvalidErr("email is required")
	}
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	reference = strings.ToUpper(strings.TrimSpace(reference))
	if reference == "" {
		bookings, err := s.bookings.ListByIdentity(ctx, identity.ID)
		if err != nil {
			return nil, apperr.InternalErr(err, "failed to list bookings")
		}
		summaries := make([]domain.BookingSummary, 0, len(bookings))
		for i := range bookings {
			summaries = append(summaries, bookings[i].Summary())
		}
		return &LookupResult{Summaries: summaries}, nil
	}

	booking, err := s.bookings.GetByReference(ctx, reference)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && booking.IdentityID != identity.ID) {
		return nil, apperr.NotFoundErr("booking %s not found", reference)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load booking")
	}
	if err := s.attach(ctx, booking); err != nil {
		return nil, err
	}
	return &LookupResult{Booking: booking}, nil
}

// UpdateStatus is the only writer of the two booking status fields after
// creation.
func (s *BookingService) UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error) {
	if status == nil && paymentStatus == nil {
		return nil, apperr.InvalidErr("no status given")
	}
	if status != nil && !status.Valid() {
		return nil, apperr.InvalidErr("unknown booking status %q", *status)
	}
	if paymentStatus != nil && !paymentStatus.Valid() {
		return nil, apperr.InvalidErr("unknown payment status %q", *paymentStatus)
	}

	booking, err := s.bookings.UpdateStatus(ctx, id, status, paymentStatus)
	if errors.Is(err, repository.ErrBookingCancelled) {
		return nil, apperr.InvalidTransitionErr("booking %s is cancelled", id)
	}
	if errors.Is(err, repository.ErrPaymentNotSettled) {
		return nil, apperr.NotAllowedErr("booking %s has no payment backing status %s", id, *paymentStatus)
	}
	if err != nil {
		return nil, bookingErr(err, id)
	}

	entry := s.log.WithFields(logrus.Fields{"booking_id": id, "status": booking.Status, "payment_status": booking.PaymentStatus})
	entry.Info("booking status updated")
	return booking, nil
}

func (s *BookingService) UpdateContact(ctx context.Context, id uuid.UUID, input UpdateContactInput) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingErr(err, id)
	}

	email, phone := current.ContactEmail, current.ContactPhone
	if input.ContactEmail != nil {
		email = strings.TrimSpace(*input.ContactEmail)
		if email == "" || !strings.Contains(email, "@") {
			return nil, apperr.InvalidErr("contact email is invalid")
		}
	}
	if input.ContactPhone != nil {
		phone = strings.TrimSpace(*input.ContactPhone)
	}

	updated, err := s.bookings.UpdateContact(ctx, id, email, phone)
	if err != nil {
		return nil, bookingErr(err, id)
	}
	return updated, nil
}

// CancelBooking is a no-op for an already cancelled booking. Seats held by
// the booking go back to inventory.
func (s *BookingService) CancelBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingErr(err, id)
	}
	if current.Status == domain.BookingStatusCancelled {
		return current, nil
	}

	var released int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cancelled := domain.BookingStatusCancelled
		if _, err := s.UpdateStatus(ctx, id, &cancelled, nil); err != nil {
			return err
		}
		n, err := s.allocations.DeleteByBooking(ctx, id)
		if err != nil {
			return apperr.InternalErr(err, "failed to release seats")
		}
		released = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": id, "released_seats": released}).Info("booking cancelled")

	updated, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingErr(err, id)
	}
	s.publish(ctx, "booking_cancelled", updated)
	return updated, nil
}

// DeleteBooking removes an unpaid booking that never entered the refund
// process.
func (s *BookingService) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return bookingErr(err, id)
	}
	switch current.PaymentStatus {
	case domain.BookingPaymentPending, domain.BookingPaymentFailed:
	default:
		return apperr.NotAllowedErr("booking with payment status %s cannot be deleted", current.PaymentStatus)
	}
	if current.HasCompletedPayment() {
		return apperr.NotAllowedErr("booking has a completed payment")
	}

	history, err := s.refunds.ListByBooking(ctx, id)
	if err != nil {
		return apperr.InternalErr(err, "failed to load refund history")
	}
	if len(history) > 0 {
		return apperr.NotAllowedErr("booking has refund history and cannot be deleted")
	}

	if err := s.bookings.Delete(ctx, id); err != nil {
		return bookingErr(err, id)
	}
	s.log.WithField("booking_id", id).Info("booking deleted")
	s.publish(ctx, "booking_deleted", current)
	return nil
}

func bookingErr(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundErr("booking %s not found", id)
	}
	return apperr.InternalErr(err, "booking storage failure")
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:          eventType,
		BookingID:     booking.ID.String(),
		Reference:     booking.Reference,
		Email:         booking.ContactEmail,
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		OccurredAt:    s.now().UTC(),
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, booking.ID.String(), event); err != nil {
		s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "event": eventType}).WithError(err).Warn("failed to publish booking event")
	}
}

type directTx struct{}

func (directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ BookingUseCase = (*BookingService)(nil)
