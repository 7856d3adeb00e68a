// Package seating assigns aircraft seats to passengers of paid bookings.
//
// The unique indexes on seat_allocations are what keep two passengers out of
// one seat. Everything checked here before the insert only narrows races.
package seating

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type AllocatorUseCase interface {
	// Allocate seats one passenger on one leg, at SeatNumber when given or
	// at the first free seat of the leg's class otherwise.
	Allocate(ctx context.Context, input AllocateInput) (*domain.SeatAllocation, error)
	ListAllocations(ctx context.Context, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error)
	// AllocateBooking seats every passenger of a paid booking that still
	// lacks a seat, honouring stored preferences where possible.
	AllocateBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.SeatAllocation, error)
}

// SeatClaims is a short-lived advisory claim on a seat.
type SeatClaims interface {
	AcquireSeatClaim(ctx context.Context, flightID int64, seatNumber, owner string, ttl time.Duration) (bool, error)
	ReleaseSeatClaim(ctx context.Context, flightID int64, seatNumber, owner string) error
}

type AllocateInput struct {
	BookingFlightID uuid.UUID `json:"booking_flight_id"`
	PassengerID     uuid.UUID `json:"passenger_id"`
	SeatNumber      string    `json:"seat_number,omitempty"`
}

type Allocator struct {
	bookings    repository.BookingRepository
	flights     repository.FlightRepository
	seats       repository.SeatRepository
	allocations repository.AllocationRepository
	log         logrus.FieldLogger

	claims   SeatClaims
	claimTTL time.Duration
}

type Option func(*Allocator)

func WithSeatClaims(claims SeatClaims, ttl time.Duration) Option {
	return func(a *Allocator) {
		a.claims = claims
		a.claimTTL = ttl
	}
}

func NewAllocator(
	bookings repository.BookingRepository,
	flights repository.FlightRepository,
	seats repository.SeatRepository,
	allocations repository.AllocationRepository,
	logger logrus.FieldLogger,
	opts ...Option,
) *Allocator {
	a := &Allocator{
		bookings:    bookings,
		flights:     flights,
		seats:       seats,
		allocations: allocations,
		log:         logger,
		claimTTL:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) Allocate(ctx context.Context, input AllocateInput) (*domain.SeatAllocation, error) {
	leg, err := a.bookings.GetBookingFlight(ctx, input.BookingFlightID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("booking flight %s not found", input.BookingFlightID).WithCode(apperr.CodeBookingFlightNotFound)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load booking flight")
	}

	booking, err := a.bookings.GetByID(ctx, leg.BookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundErr("booking flight %s not found", input.BookingFlightID).WithCode(apperr.CodeBookingFlightNotFound)
		}
		return nil, apperr.InternalErr(err, "failed to load booking")
	}

	passenger := booking.Passenger(input.PassengerID)
	if passenger == nil {
		return nil, apperr.NotFoundErr("passenger %s is not on this booking", input.PassengerID).WithCode(apperr.CodePassengerNotFound)
	}
	if err := checkSeatable(booking, passenger); err != nil {
		return nil, err
	}
	if existing := leg.AllocationFor(passenger.ID); existing != nil {
		return nil, apperr.ConflictErr("passenger already holds seat %s on this leg", existing.SeatNumber)
	}

	flight, err := a.flight(ctx, leg.FlightID)
	if err != nil {
		return nil, err
	}

	seat := strings.ToUpper(strings.TrimSpace(input.SeatNumber))
	if seat != "" {
		return a.allocateExplicit(ctx, leg, flight, passenger.ID, seat)
	}
	return a.allocateAuto(ctx, leg, flight, passenger.ID)
}

func checkSeatable(booking *domain.Booking, passenger *domain.Passenger) error {
	if booking.Status == domain.BookingStatusCancelled {
		return apperr.NotAllowedErr("booking %s is cancelled", booking.Reference)
	}
	if booking.PaymentStatus != domain.BookingPaymentPaid {
		return apperr.NotAllowedErr("booking %s is not paid", booking.Reference)
	}
	if !passenger.Type.NeedsSeat() {
		return apperr.NotAllowedErr("infants do not get a seat")
	}
	return nil
}

func (a *Allocator) flight(ctx context.Context, id int64) (*domain.Flight, error) {
	flight, err := a.flights.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("flight %d not found", id)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load flight")
	}
	if flight.Status == domain.FlightStatusCancelled {
		return nil, apperr.NotAllowedErr("flight %s is cancelled", flight.Number)
	}
	return flight, nil
}

func (a *Allocator) allocateExplicit(ctx context.Context, leg *domain.BookingFlight, flight *domain.Flight, passengerID uuid.UUID, number string) (*domain.SeatAllocation, error) {
	seat, err := a.seats.GetByNumber(ctx, flight.AircraftID, number)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.SeatUnavailableErr("seat %s does not exist on this aircraft", number)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load seat")
	}
	if seat.TravelClass != leg.TravelClass {
		return nil, apperr.SeatUnavailableErr("seat %s is %s, this leg is booked in %s",
			seat.SeatNumber, strings.ToLower(string(seat.TravelClass)), strings.ToLower(string(leg.TravelClass)))
	}

	if a.claims != nil {
		owner := passengerID.String()
		ok, err := a.claims.AcquireSeatClaim(ctx, flight.ID, seat.SeatNumber, owner, a.claimTTL)
		switch {
		case err != nil:
			a.log.WithFields(logrus.Fields{"flight_id": flight.ID, "seat": seat.SeatNumber}).WithError(err).Warn("seat claim unavailable, relying on storage constraint")
		case !ok:
			return nil, apperr.SeatUnavailableErr("seat %s is being taken by another request", seat.SeatNumber)
		default:
			defer func() {
				if err := a.claims.ReleaseSeatClaim(context.WithoutCancel(ctx), flight.ID, seat.SeatNumber, owner); err != nil {
					a.log.WithField("seat", seat.SeatNumber).WithError(err).Warn("failed to release seat claim")
				}
			}()
		}
	}

	taken, err := a.allocations.IsSeatTaken(ctx, flight.ID, seat.ID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to check seat")
	}
	if taken {
		return nil, apperr.SeatUnavailableErr("seat %s is already taken", seat.SeatNumber)
	}

	allocation, err := a.insert(ctx, leg, flight, seat, passengerID)
	if errors.Is(err, repository.ErrSeatTaken) {
		return nil, apperr.SeatUnavailableErr("seat %s is already taken", seat.SeatNumber)
	}
	return allocation, err
}

// allocateAuto retries once when another request wins the chosen seat
// between selection and insert.
func (a *Allocator) allocateAuto(ctx context.Context, leg *domain.BookingFlight, flight *domain.Flight, passengerID uuid.UUID) (*domain.SeatAllocation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		free, err := a.seats.ListFree(ctx, flight.ID, flight.AircraftID, leg.TravelClass, 1)
		if err != nil {
			return nil, apperr.InternalErr(err, "failed to list free seats")
		}
		if len(free) == 0 {
			return nil, apperr.SeatUnavailableErr("no free %s seat on flight %s", strings.ToLower(string(leg.TravelClass)), flight.Number)
		}

		allocation, err := a.insert(ctx, leg, flight, &free[0], passengerID)
		if errors.Is(err, repository.ErrSeatTaken) {
			a.log.WithFields(logrus.Fields{"flight_id": flight.ID, "seat": free[0].SeatNumber}).Info("lost seat race, selecting again")
			continue
		}
		return allocation, err
	}
	return nil, apperr.SeatUnavailableErr("no free %s seat on flight %s", strings.ToLower(string(leg.TravelClass)), flight.Number)
}

// insert returns repository.ErrSeatTaken unchanged so callers pick their
// own policy for it.
func (a *Allocator) insert(ctx context.Context, leg *domain.BookingFlight, flight *domain.Flight, seat *domain.Seat, passengerID uuid.UUID) (*domain.SeatAllocation, error) {
	allocation := &domain.SeatAllocation{
		ID:              uuid.New(),
		BookingFlightID: leg.ID,
		FlightID:        flight.ID,
		SeatID:          seat.ID,
		SeatNumber:      seat.SeatNumber,
		PassengerID:     passengerID,
	}
	err := a.allocations.Create(ctx, allocation)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrSeatTaken):
		return nil, err
	case errors.Is(err, repository.ErrPassengerSeated):
		return nil, apperr.ConflictErr("passenger already holds a seat on this leg")
	default:
		return nil, apperr.InternalErr(err, "failed to store seat allocation")
	}

	a.log.WithFields(logrus.Fields{
		"booking_flight_id": leg.ID,
		"flight_id":         flight.ID,
		"seat":              seat.SeatNumber,
		"passenger_id":      passengerID,
	}).Info("seat allocated")
	return allocation, nil
}

func (a *Allocator) ListAllocations(ctx context.Context, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error) {
	if _, err := a.bookings.GetBookingFlight(ctx, bookingFlightID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundErr("booking flight %s not found", bookingFlightID).WithCode(apperr.CodeBookingFlightNotFound)
		}
		return nil, apperr.InternalErr(err, "failed to load booking flight")
	}
	allocs, err := a.allocations.ListByBookingFlight(ctx, bookingFlightID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list allocations")
	}
	return allocs, nil
}

// AllocateBooking keeps going past individual failures and reports them
// joined; passengers left without a seat can still check in later.
func (a *Allocator) AllocateBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.SeatAllocation, error) {
	booking, err := a.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("booking %s not found", bookingID)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load booking")
	}

	var (
		allocated []domain.SeatAllocation
		errs      []error
	)
	for i := range booking.Legs {
		leg := &booking.Legs[i]
		flight, err := a.flight(ctx, leg.FlightID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for j := range booking.Passengers {
			passenger := &booking.Passengers[j]
			if err := checkSeatable(booking, passenger); err != nil {
				if passenger.Type.NeedsSeat() {
					return nil, err
				}
				continue
			}
			if leg.AllocationFor(passenger.ID) != nil {
				continue
			}

			allocation, err := a.allocatePreferred(ctx, leg, flight, passenger.ID)
			if err != nil {
				a.log.WithFields(logrus.Fields{
					"booking_id":   booking.ID,
					"flight_id":    flight.ID,
					"passenger_id": passenger.ID,
				}).WithError(err).Warn("passenger left without a seat")
				errs = append(errs, err)
				continue
			}
			allocated = append(allocated, *allocation)
		}
	}
	return allocated, errors.Join(errs...)
}

func (a *Allocator) allocatePreferred(ctx context.Context, leg *domain.BookingFlight, flight *domain.Flight, passengerID uuid.UUID) (*domain.SeatAllocation, error) {
	if preferred := leg.PreferredSeat(passengerID); preferred != "" {
		allocation, err := a.allocateExplicit(ctx, leg, flight, passengerID, preferred)
		if err == nil || !apperr.Is(err, apperr.SeatUnavailable) {
			return allocation, err
		}
		a.log.WithFields(logrus.Fields{"flight_id": flight.ID, "seat": preferred}).Info("preferred seat unavailable, assigning automatically")
	}
	return a.allocateAuto(ctx, leg, flight, passengerID)
}

var _ AllocatorUseCase = (*Allocator)(nil)
