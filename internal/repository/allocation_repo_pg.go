package repository

import (
	"context"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGAllocationRepository struct {
	pgBase
}

func NewAllocationRepository(db *pgxpool.Pool) *PGAllocationRepository {
	return &PGAllocationRepository{pgBase{db: db}}
}

// Create relies on the two unique constraints of seat_allocations; a
// violation surfaces as ErrSeatTaken or ErrPassengerSeated.
func (r *PGAllocationRepository) Create(ctx context.Context, allocation *domain.SeatAllocation) error {
	if allocation.ID == uuid.Nil {
		allocation.ID = uuid.New()
	}
	// A savepoint keeps a rejected insert from aborting an enclosing transaction.
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO seat_allocations (id, booking_flight_id, flight_id, seat_id, passenger_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			allocation.ID, allocation.BookingFlightID, allocation.FlightID, allocation.SeatID, allocation.PassengerID).
			Scan(&allocation.CreatedAt)
		return translate(err)
	})
}

func (r *PGAllocationRepository) ListByBookingFlight(ctx context.Context, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error) {
	return listAllocations(ctx, r.q(ctx), bookingFlightID)
}

func listAllocations(ctx context.Context, q querier, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error) {
	rows, err := q.Query(ctx, `SELECT a.id, a.booking_flight_id, a.flight_id, a.seat_id, s.seat_number, a.passenger_id, a.created_at
		FROM seat_allocations a JOIN seats s ON s.id = a.seat_id
		WHERE a.booking_flight_id=$1 ORDER BY a.created_at, a.id`, bookingFlightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocs := make([]domain.SeatAllocation, 0)
	for rows.Next() {
		var a domain.SeatAllocation
		if err := rows.Scan(&a.ID, &a.BookingFlightID, &a.FlightID, &a.SeatID, &a.SeatNumber, &a.PassengerID, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func (r *PGAllocationRepository) IsSeatTaken(ctx context.Context, flightID, seatID int64) (bool, error) {
	var taken bool
	err := r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM seat_allocations WHERE flight_id=$1 AND seat_id=$2)`, flightID, seatID).Scan(&taken)
	return taken, err
}

func (r *PGAllocationRepository) DeleteByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	res, err := r.q(ctx).Exec(ctx, `DELETE FROM seat_allocations a USING booking_flights l
		WHERE a.booking_flight_id = l.id AND l.booking_id=$1`, bookingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

var _ AllocationRepository = (*PGAllocationRepository)(nil)
