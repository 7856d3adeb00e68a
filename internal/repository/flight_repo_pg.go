package repository

import (
	"context"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const flightColumns = `id, flight_number, aircraft_id, from_airport, to_airport, departure_time, arrival_time, status, created_at, updated_at`

type PGFlightRepository struct {
	pgBase
}

func NewFlightRepository(db *pgxpool.Pool) *PGFlightRepository {
	return &PGFlightRepository{pgBase{db: db}}
}

func scanFlight(row pgx.Row) (*domain.Flight, error) {
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.Number, &f.AircraftID, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	return scanFlight(r.q(ctx).QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id))
}

var _ FlightRepository = (*PGFlightRepository)(nil)

type PGSeatRepository struct {
	pgBase
}

func NewSeatRepository(db *pgxpool.Pool) *PGSeatRepository {
	return &PGSeatRepository{pgBase{db: db}}
}

func (r *PGSeatRepository) GetByNumber(ctx context.Context, aircraftID int64, seatNumber string) (*domain.Seat, error) {
	row := r.q(ctx).QueryRow(ctx, `SELECT id, aircraft_id, seat_number, seat_row, seat_letter, travel_class
		FROM seats WHERE aircraft_id=$1 AND upper(seat_number)=upper($2)`, aircraftID, seatNumber)
	var s domain.Seat
	if err := row.Scan(&s.ID, &s.AircraftID, &s.SeatNumber, &s.Row, &s.Letter, &s.TravelClass); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *PGSeatRepository) ListFree(ctx context.Context, flightID, aircraftID int64, class domain.TravelClass, limit int) ([]domain.Seat, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.q(ctx).Query(ctx, `SELECT s.id, s.aircraft_id, s.seat_number, s.seat_row, s.seat_letter, s.travel_class
		FROM seats s
		WHERE s.aircraft_id=$1
		  AND ($2 = '' OR s.travel_class = $2)
		  AND NOT EXISTS (SELECT 1 FROM seat_allocations a WHERE a.flight_id=$3 AND a.seat_id=s.id)
		ORDER BY s.seat_row, s.seat_letter
		LIMIT $4`, aircraftID, string(class), flightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.Seat, 0)
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.AircraftID, &s.SeatNumber, &s.Row, &s.Letter, &s.TravelClass); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

var _ SeatRepository = (*PGSeatRepository)(nil)
