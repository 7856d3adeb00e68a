package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/Domenick1991/airticket/internal/repository/memory"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Storage groups the repositories every process needs.
type Storage struct {
	Tx          repository.TxManager
	Identities  repository.IdentityRepository
	Flights     repository.FlightRepository
	Seats       repository.SeatRepository
	Bookings    repository.BookingRepository
	Allocations repository.AllocationRepository
	Payments    repository.PaymentRepository
	Refunds     repository.RefundRepository

	close func()
}

func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage connects the configured driver. The memory driver starts
// with a small demo schedule.
func OpenStorage(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		SeedDemo(store)
		logger.Warn("using in-memory storage, data is lost on exit")
		return &Storage{
			Tx:          store,
			Identities:  store.Identities(),
			Flights:     store.Flights(),
			Seats:       store.Seats(),
			Bookings:    store.Bookings(),
			Allocations: store.Allocations(),
			Payments:    store.Payments(),
			Refunds:     store.Refunds(),
		}, nil

	case "postgres", "":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Storage{
			Tx:          repository.NewTxManager(pool),
			Identities:  repository.NewIdentityRepository(pool),
			Flights:     repository.NewFlightRepository(pool),
			Seats:       repository.NewSeatRepository(pool),
			Bookings:    repository.NewBookingRepository(pool),
			Allocations: repository.NewAllocationRepository(pool),
			Payments:    repository.NewPaymentRepository(pool),
			Refunds:     repository.NewRefundRepository(pool),
			close:       pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// SeedDemo loads two aircraft and a few flights into an empty store.
func SeedDemo(store *memory.Store) {
	tomorrow := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)

	for _, aircraft := range []int64{1, 2} {
		store.AddSeats(aircraft, domain.TravelClassBusiness, 1, 3, "ACDF")
		store.AddSeats(aircraft, domain.TravelClassPremium, 4, 6, "ABCDEF")
		store.AddSeats(aircraft, domain.TravelClassEconomy, 7, 30, "ABCDEF")
	}

	store.AddFlight(domain.Flight{Number: "VN200", AircraftID: 1, FromAirport: "SGN", ToAirport: "HAN", DepartureTime: tomorrow, ArrivalTime: tomorrow.Add(2 * time.Hour)})
	store.AddFlight(domain.Flight{Number: "VN201", AircraftID: 1, FromAirport: "HAN", ToAirport: "SGN", DepartureTime: tomorrow.Add(4 * time.Hour), ArrivalTime: tomorrow.Add(6 * time.Hour)})
	store.AddFlight(domain.Flight{Number: "VN300", AircraftID: 2, FromAirport: "SGN", ToAirport: "DAD", DepartureTime: tomorrow.Add(48 * time.Hour), ArrivalTime: tomorrow.Add(49 * time.Hour)})
}
