package api

import (
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
)

type flightResponse struct {
	ID            int64     `json:"id"`
	Number        string    `json:"flight_number"`
	AircraftID    int64     `json:"aircraft_id"`
	FromAirport   string    `json:"from_airport"`
	ToAirport     string    `json:"to_airport"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Status        string    `json:"status"`
}

type seatResponse struct {
	ID          int64  `json:"id"`
	SeatNumber  string `json:"seat_number"`
	Row         int    `json:"row"`
	Letter      string `json:"letter"`
	TravelClass string `json:"travel_class"`
}

type allocationResponse struct {
	ID              uuid.UUID `json:"id"`
	BookingFlightID uuid.UUID `json:"booking_flight_id"`
	FlightID        int64     `json:"flight_id"`
	PassengerID     uuid.UUID `json:"passenger_id"`
	SeatNumber      string    `json:"seat_number"`
	CreatedAt       time.Time `json:"created_at"`
}

type legResponse struct {
	ID              uuid.UUID               `json:"id"`
	FlightID        int64                   `json:"flight_id"`
	Flight          *flightResponse         `json:"flight,omitempty"`
	TravelClass     string                  `json:"travel_class"`
	FareAmount      int64                   `json:"fare_amount"`
	BaggageKg       int                     `json:"baggage_kg"`
	SeatPreferences []domain.SeatPreference `json:"seat_preferences,omitempty"`
	Allocations     []allocationResponse    `json:"allocations"`
}

type passengerResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

type paymentResponse struct {
	ID                   uuid.UUID  `json:"id"`
	BookingID            uuid.UUID  `json:"booking_id"`
	Amount               int64      `json:"amount"`
	Method               string     `json:"method"`
	Status               string     `json:"status"`
	GatewayOrderID       string     `json:"gateway_order_id,omitempty"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	GatewayMessage       string     `json:"gateway_message,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type bookingResponse struct {
	ID            uuid.UUID           `json:"id"`
	Reference     string              `json:"reference"`
	IdentityID    uuid.UUID           `json:"identity_id"`
	TotalAmount   int64               `json:"total_amount"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	ContactEmail  string              `json:"contact_email"`
	ContactPhone  string              `json:"contact_phone,omitempty"`
	Legs          []legResponse       `json:"legs"`
	Passengers    []passengerResponse `json:"passengers,omitempty"`
	Payments      []paymentResponse   `json:"payments,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// bookingSummaryResponse is what an email-only guest lookup sees. It omits
// the booking id so that id-addressed routes stay closed to it.
type bookingSummaryResponse struct {
	Reference     string    `json:"reference"`
	TotalAmount   int64     `json:"total_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	LegCount      int       `json:"leg_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type refundResponse struct {
	ID               uuid.UUID  `json:"id"`
	BookingID        uuid.UUID  `json:"booking_id"`
	BookingReference string     `json:"booking_reference"`
	Reason           string     `json:"reason"`
	Amount           int64      `json:"amount"`
	RequesterName    string     `json:"requester_name"`
	RequesterEmail   string     `json:"requester_email"`
	RequesterPhone   string     `json:"requester_phone,omitempty"`
	Status           string     `json:"status"`
	AdminNotes       string     `json:"admin_notes,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ProcessedBy      string     `json:"processed_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toFlightResponse(f *domain.Flight) flightResponse {
	return flightResponse{
		ID:            f.ID,
		Number:        f.Number,
		AircraftID:    f.AircraftID,
		FromAirport:   f.FromAirport,
		ToAirport:     f.ToAirport,
		DepartureTime: f.DepartureTime,
		ArrivalTime:   f.ArrivalTime,
		Status:        string(f.Status),
	}
}

func toSeatResponse(s domain.Seat) seatResponse {
	return seatResponse{
		ID:          s.ID,
		SeatNumber:  s.SeatNumber,
		Row:         s.Row,
		Letter:      s.Letter,
		TravelClass: string(s.TravelClass),
	}
}

func toAllocationResponse(a *domain.SeatAllocation) allocationResponse {
	return allocationResponse{
		ID:              a.ID,
		BookingFlightID: a.BookingFlightID,
		FlightID:        a.FlightID,
		PassengerID:     a.PassengerID,
		SeatNumber:      a.SeatNumber,
		CreatedAt:       a.CreatedAt,
	}
}

func toAllocationResponses(allocs []domain.SeatAllocation) []allocationResponse {
	out := make([]allocationResponse, 0, len(allocs))
	for i := range allocs {
		out = append(out, toAllocationResponse(&allocs[i]))
	}
	return out
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                   p.ID,
		BookingID:            p.BookingID,
		Amount:               p.Amount,
		Method:               string(p.Method),
		Status:               string(p.Status),
		GatewayOrderID:       p.GatewayOrderID,
		GatewayTransactionID: p.GatewayTransactionID,
		GatewayMessage:       p.GatewayMessage,
		PaidAt:               p.PaidAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func toPaymentResponses(payments []domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, toPaymentResponse(&payments[i]))
	}
	return out
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:            b.ID,
		Reference:     b.Reference,
		IdentityID:    b.IdentityID,
		TotalAmount:   b.TotalAmount,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		ContactEmail:  b.ContactEmail,
		ContactPhone:  b.ContactPhone,
		Legs:          make([]legResponse, 0, len(b.Legs)),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, leg := range b.Legs {
		lr := legResponse{
			ID:              leg.ID,
			FlightID:        leg.FlightID,
			TravelClass:     string(leg.TravelClass),
			FareAmount:      leg.FareAmount,
			BaggageKg:       leg.BaggageKg,
			SeatPreferences: leg.SeatPreferences,
			Allocations:     toAllocationResponses(leg.Allocations),
		}
		if leg.Flight != nil {
			f := toFlightResponse(leg.Flight)
			lr.Flight = &f
		}
		resp.Legs = append(resp.Legs, lr)
	}
	for _, p := range b.Passengers {
		resp.Passengers = append(resp.Passengers, passengerResponse{
			ID:          p.ID,
			Type:        string(p.Type),
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: p.DateOfBirth,
		})
	}
	if len(b.Payments) > 0 {
		resp.Payments = toPaymentResponses(b.Payments)
	}
	return resp
}

func toBookingResponses(bookings []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	return out
}

func toSummaryResponse(s domain.BookingSummary) bookingSummaryResponse {
	return bookingSummaryResponse{
		Reference:     s.Reference,
		TotalAmount:   s.TotalAmount,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		LegCount:      s.LegCount,
		CreatedAt:     s.CreatedAt,
	}
}

func toRefundResponse(r *domain.RefundHistory) refundResponse {
	return refundResponse{
		ID:               r.ID,
		BookingID:        r.BookingID,
		BookingReference: r.BookingReference,
		Reason:           string(r.Reason),
		Amount:           r.Amount,
		RequesterName:    r.RequesterName,
		RequesterEmail:   r.RequesterEmail,
		RequesterPhone:   r.RequesterPhone,
		Status:           string(r.Status),
		AdminNotes:       r.AdminNotes,
		ProcessedAt:      r.ProcessedAt,
		ProcessedBy:      r.ProcessedBy,
		CreatedAt:        r.CreatedAt,
	}
}

func toRefundResponses(refunds []domain.RefundHistory) []refundResponse {
	out := make([]refundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, toRefundResponse(&refunds[i]))
	}
	return out
}
