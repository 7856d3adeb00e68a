package repository

import (
	"context"
	"encoding/json"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, reference, identity_id, total_amount, booking_status, payment_status, contact_email, contact_phone, created_at, updated_at`

type PGBookingRepository struct {
	pgBase
}

func NewBookingRepository(db *pgxpool.Pool) *PGBookingRepository {
	return &PGBookingRepository{pgBase{db: db}}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.Reference, &b.IdentityID, &b.TotalAmount, &b.Status, &b.PaymentStatus, &b.ContactEmail, &b.ContactPhone, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, reference, identity_id, total_amount, booking_status, payment_status, contact_email, contact_phone)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`,
			booking.ID, booking.Reference, booking.IdentityID, booking.TotalAmount, booking.Status, booking.PaymentStatus, booking.ContactEmail, booking.ContactPhone).
			Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
			return translate(err)
		}

		for i := range booking.Passengers {
			p := &booking.Passengers[i]
			p.BookingID = booking.ID
			if _, err := tx.Exec(ctx, `INSERT INTO passengers (id, booking_id, position, passenger_type, first_name, last_name, date_of_birth, document)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				p.ID, p.BookingID, i, p.Type, p.FirstName, p.LastName, p.DateOfBirth, p.Document); err != nil {
				return translate(err)
			}
		}

		for i := range booking.Legs {
			leg := &booking.Legs[i]
			leg.BookingID = booking.ID
			prefs, err := json.Marshal(nonNilPreferences(leg.SeatPreferences))
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `INSERT INTO booking_flights (id, booking_id, flight_id, travel_class, fare_amount, baggage_kg, seat_preferences)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING created_at`,
				leg.ID, leg.BookingID, leg.FlightID, leg.TravelClass, leg.FareAmount, leg.BaggageKg, prefs).
				Scan(&leg.CreatedAt); err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func nonNilPreferences(prefs []domain.SeatPreference) []domain.SeatPreference {
	if prefs == nil {
		return []domain.SeatPreference{}
	}
	return prefs
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.q(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return b, r.loadDetail(ctx, b)
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := scanBooking(r.q(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference))
	if err != nil {
		return nil, err
	}
	return b, r.loadDetail(ctx, b)
}

func (r *PGBookingRepository) loadDetail(ctx context.Context, b *domain.Booking) error {
	legs, err := r.listLegs(ctx, b.ID)
	if err != nil {
		return err
	}
	for i := range legs {
		allocs, err := listAllocations(ctx, r.q(ctx), legs[i].ID)
		if err != nil {
			return err
		}
		legs[i].Allocations = allocs
	}
	b.Legs = legs

	if b.Passengers, err = r.listPassengers(ctx, b.ID); err != nil {
		return err
	}
	b.Payments, err = listPayments(ctx, r.q(ctx), b.ID)
	return err
}

func (r *PGBookingRepository) listLegs(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingFlight, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT id, booking_id, flight_id, travel_class, fare_amount, baggage_kg, seat_preferences, created_at
		FROM booking_flights WHERE booking_id=$1 ORDER BY created_at, id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	legs := make([]domain.BookingFlight, 0)
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, err
		}
		legs = append(legs, *leg)
	}
	return legs, rows.Err()
}

func scanLeg(row pgx.Row) (*domain.BookingFlight, error) {
	var (
		leg   domain.BookingFlight
		prefs []byte
	)
	if err := row.Scan(&leg.ID, &leg.BookingID, &leg.FlightID, &leg.TravelClass, &leg.FareAmount, &leg.BaggageKg, &prefs, &leg.CreatedAt); err != nil {
		return nil, translate(err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &leg.SeatPreferences); err != nil {
			return nil, err
		}
	}
	return &leg, nil
}

func (r *PGBookingRepository) listPassengers(ctx context.Context, bookingID uuid.UUID) ([]domain.Passenger, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT id, booking_id, passenger_type, first_name, last_name, date_of_birth, document
		FROM passengers WHERE booking_id=$1 ORDER BY position`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	passengers := make([]domain.Passenger, 0)
	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Type, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Document); err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	return passengers, rows.Err()
}

func (r *PGBookingRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE identity_id=$1 ORDER BY created_at DESC`, identityID)
	if err != nil {
		return nil, err
	}
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		if bookings[i].Legs, err = r.listLegs(ctx, bookings[i].ID); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error) {
	var updated *domain.Booking
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if status != nil && !domain.CanMoveBooking(current.Status, *status) {
			return ErrBookingCancelled
		}
		if settled, ok := settledPaymentStatuses(paymentStatus); ok {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id=$1 AND status = ANY($2))`,
				id, settled).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrPaymentNotSettled
			}
		}

		next, nextPayment := current.Status, current.PaymentStatus
		if status != nil {
			next = *status
		}
		if paymentStatus != nil {
			nextPayment = *paymentStatus
		}
		updated, err = scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET booking_status=$1, payment_status=$2, updated_at=now()
			WHERE id=$3 RETURNING `+bookingColumns, next, nextPayment, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PGBookingRepository) UpdateContact(ctx context.Context, id uuid.UUID, email, phone string) (*domain.Booking, error) {
	return scanBooking(r.q(ctx).QueryRow(ctx, `UPDATE bookings SET contact_email=$1, contact_phone=$2, updated_at=now()
		WHERE id=$3 RETURNING `+bookingColumns, email, phone, id))
}

func (r *PGBookingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q(ctx).Exec(ctx, `DELETE FROM bookings WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) GetBookingFlight(ctx context.Context, id uuid.UUID) (*domain.BookingFlight, error) {
	leg, err := scanLeg(r.q(ctx).QueryRow(ctx, `SELECT id, booking_id, flight_id, travel_class, fare_amount, baggage_kg, seat_preferences, created_at
		FROM booking_flights WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if leg.Allocations, err = listAllocations(ctx, r.q(ctx), leg.ID); err != nil {
		return nil, err
	}
	return leg, nil
}

// settledPaymentStatuses lists the payment statuses that back a requested
// booking payment status. ok is false when the status needs none.
func settledPaymentStatuses(status *domain.BookingPaymentStatus) ([]string, bool) {
	if status == nil {
		return nil, false
	}
	switch *status {
	case domain.BookingPaymentPaid:
		return []string{string(domain.PaymentStatusCompleted)}, true
	case domain.BookingPaymentRefunded:
		return []string{string(domain.PaymentStatusCompleted), string(domain.PaymentStatusRefunded)}, true
	}
	return nil, false
}

var _ BookingRepository = (*PGBookingRepository)(nil)
