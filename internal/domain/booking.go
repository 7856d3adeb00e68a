package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusReserved  BookingStatus = "RESERVED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusReserved, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "PENDING"
	BookingPaymentPaid     BookingPaymentStatus = "PAID"
	BookingPaymentFailed   BookingPaymentStatus = "FAILED"
	BookingPaymentRefunded BookingPaymentStatus = "REFUNDED"
)

func (s BookingPaymentStatus) Valid() bool {
	switch s {
	case BookingPaymentPending, BookingPaymentPaid, BookingPaymentFailed, BookingPaymentRefunded:
		return true
	}
	return false
}

// CanMoveBooking reports whether a booking may go from one status to another.
// Cancelled is terminal.
func CanMoveBooking(from, to BookingStatus) bool {
	if from == BookingStatusCancelled {
		return to == BookingStatusCancelled
	}
	return to.Valid()
}

type Booking struct {
	ID            uuid.UUID
	Reference     string
	IdentityID    uuid.UUID
	TotalAmount   int64
	Status        BookingStatus
	PaymentStatus BookingPaymentStatus
	ContactEmail  string
	ContactPhone  string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Identity   *Identity
	Legs       []BookingFlight
	Passengers []Passenger
	Payments   []Payment
}

// Passenger returns the passenger with the given id, or nil.
func (b *Booking) Passenger(id uuid.UUID) *Passenger {
	for i := range b.Passengers {
		if b.Passengers[i].ID == id {
			return &b.Passengers[i]
		}
	}
	return nil
}

// HasCompletedPayment reports whether any payment on the booking went through.
func (b *Booking) HasCompletedPayment() bool {
	for _, p := range b.Payments {
		if p.Status == PaymentStatusCompleted {
			return true
		}
	}
	return false
}

// WasPaid reports whether money ever moved for the booking: a payment is
// completed or was completed and refunded since.
func (b *Booking) WasPaid() bool {
	for _, p := range b.Payments {
		if p.Status == PaymentStatusCompleted || p.Status == PaymentStatusRefunded {
			return true
		}
	}
	return false
}

// BookingSummary is the reduced view returned to unauthenticated callers.
type BookingSummary struct {
	ID            uuid.UUID
	Reference     string
	TotalAmount   int64
	Status        BookingStatus
	PaymentStatus BookingPaymentStatus
	LegCount      int
	CreatedAt     time.Time
}

func (b *Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:            b.ID,
		Reference:     b.Reference,
		TotalAmount:   b.TotalAmount,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		LegCount:      len(b.Legs),
		CreatedAt:     b.CreatedAt,
	}
}

type TravelClass string

const (
	TravelClassEconomy  TravelClass = "ECONOMY"
	TravelClassPremium  TravelClass = "PREMIUM"
	TravelClassBusiness TravelClass = "BUSINESS"
	TravelClassFirst    TravelClass = "FIRST"
)

func (c TravelClass) Valid() bool {
	switch c {
	case TravelClassEconomy, TravelClassPremium, TravelClassBusiness, TravelClassFirst:
		return true
	}
	return false
}

// BookingFlight is one leg of a booking.
type BookingFlight struct {
	ID              uuid.UUID
	BookingID       uuid.UUID
	FlightID        int64
	TravelClass     TravelClass
	FareAmount      int64
	BaggageKg       int
	SeatPreferences []SeatPreference
	CreatedAt       time.Time

	Flight      *Flight
	Allocations []SeatAllocation
}

// SeatPreference is the seat a passenger asked for on a leg at booking time.
type SeatPreference struct {
	PassengerID uuid.UUID `json:"passenger_id"`
	SeatNumber  string    `json:"seat_number"`
}

func (l *BookingFlight) PreferredSeat(passengerID uuid.UUID) string {
	for _, p := range l.SeatPreferences {
		if p.PassengerID == passengerID {
			return p.SeatNumber
		}
	}
	return ""
}

func (l *BookingFlight) AllocationFor(passengerID uuid.UUID) *SeatAllocation {
	for i := range l.Allocations {
		if l.Allocations[i].PassengerID == passengerID {
			return &l.Allocations[i]
		}
	}
	return nil
}

type PassengerType string

const (
	PassengerAdult  PassengerType = "ADULT"
	PassengerChild  PassengerType = "CHILD"
	PassengerInfant PassengerType = "INFANT"
)

func (t PassengerType) Valid() bool {
	switch t {
	case PassengerAdult, PassengerChild, PassengerInfant:
		return true
	}
	return false
}

// NeedsSeat is false for infants, who travel on an adult's lap.
func (t PassengerType) NeedsSeat() bool {
	return t != PassengerInfant
}

type Passenger struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	Type        PassengerType
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Document    string
}

type SeatAllocation struct {
	ID              uuid.UUID
	BookingFlightID uuid.UUID
	FlightID        int64
	SeatID          int64
	SeatNumber      string
	PassengerID     uuid.UUID
	CreatedAt       time.Time
}
