package flights

import (
	"context"
	"errors"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/sirupsen/logrus"
)

type FlightUseCase interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	// ListFreeSeats returns the seats of class still unallocated on the
	// flight. An empty class lists every cabin.
	ListFreeSeats(ctx context.Context, flightID int64, class domain.TravelClass) ([]domain.Seat, error)
}

type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
}

type FlightService struct {
	repo  repository.FlightRepository
	seats repository.SeatRepository
	cache FlightCache
	log   logrus.FieldLogger
}

// NewFlightService accepts a nil cache.
func NewFlightService(repo repository.FlightRepository, seats repository.SeatRepository, cache FlightCache, logger logrus.FieldLogger) *FlightService {
	return &FlightService{repo: repo, seats: seats, cache: cache, log: logger}
}

func (s *FlightService) List(ctx context.Context) ([]domain.Flight, error) {
	if s.cache != nil {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.WithError(err).Warn("flights cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list flights")
	}
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.WithError(err).Warn("flights cache write failed")
		}
	}
	return flights, nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	flight, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("flight %d not found", id)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load flight")
	}
	return flight, nil
}

func (s *FlightService) ListFreeSeats(ctx context.Context, flightID int64, class domain.TravelClass) ([]domain.Seat, error) {
	if class != "" && !class.Valid() {
		return nil, apperr.InvalidErr("unknown travel class %q", class)
	}
	flight, err := s.GetByID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	seats, err := s.seats.ListFree(ctx, flight.ID, flight.AircraftID, class, 0)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list free seats")
	}
	return seats, nil
}

var _ FlightUseCase = (*FlightService)(nil)
