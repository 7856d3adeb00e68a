// Package memory keeps every repository in process memory. It enforces the
// same uniqueness rules as the Postgres schema and backs the memory storage
// driver and the service tests.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
)

type txKey struct{}

type Store struct {
	mu sync.Mutex

	identities  map[uuid.UUID]domain.Identity
	flights     map[int64]domain.Flight
	seats       map[int64]domain.Seat
	bookings    map[uuid.UUID]domain.Booking
	legs        map[uuid.UUID][]domain.BookingFlight
	passengers  map[uuid.UUID][]domain.Passenger
	allocations map[uuid.UUID]domain.SeatAllocation
	payments    map[uuid.UUID]domain.Payment
	orders      map[string]domain.GatewayOrder
	refunds     map[uuid.UUID]domain.RefundHistory

	nextFlight int64
	nextSeat   int64
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		identities:  make(map[uuid.UUID]domain.Identity),
		flights:     make(map[int64]domain.Flight),
		seats:       make(map[int64]domain.Seat),
		bookings:    make(map[uuid.UUID]domain.Booking),
		legs:        make(map[uuid.UUID][]domain.BookingFlight),
		passengers:  make(map[uuid.UUID][]domain.Passenger),
		allocations: make(map[uuid.UUID]domain.SeatAllocation),
		payments:    make(map[uuid.UUID]domain.Payment),
		orders:      make(map[string]domain.GatewayOrder),
		refunds:     make(map[uuid.UUID]domain.RefundHistory),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// lock takes the store mutex unless ctx belongs to a transaction that
// already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx serialises fn against every other store access and restores the
// previous state when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	identities  map[uuid.UUID]domain.Identity
	bookings    map[uuid.UUID]domain.Booking
	legs        map[uuid.UUID][]domain.BookingFlight
	passengers  map[uuid.UUID][]domain.Passenger
	allocations map[uuid.UUID]domain.SeatAllocation
	payments    map[uuid.UUID]domain.Payment
	orders      map[string]domain.GatewayOrder
	refunds     map[uuid.UUID]domain.RefundHistory
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		identities:  clone(s.identities),
		bookings:    clone(s.bookings),
		legs:        clone(s.legs),
		passengers:  clone(s.passengers),
		allocations: clone(s.allocations),
		payments:    clone(s.payments),
		orders:      clone(s.orders),
		refunds:     clone(s.refunds),
	}
}

func (s *Store) restore(snap snapshot) {
	s.identities = snap.identities
	s.bookings = snap.bookings
	s.legs = snap.legs
	s.passengers = snap.passengers
	s.allocations = snap.allocations
	s.payments = snap.payments
	s.orders = snap.orders
	s.refunds = snap.refunds
}

func (s *Store) Identities() repository.IdentityRepository { return identityRepo{s} }
func (s *Store) Flights() repository.FlightRepository { return flightRepo{s} }
func (s *Store) Seats() repository.SeatRepository { return seatRepo{s} }
func (s *Store) Bookings() repository.BookingRepository { return bookingRepo{s} }
func (s *Store) Allocations() repository.AllocationRepository { return allocationRepo{s} }
func (s *Store) Payments() repository.PaymentRepository { return paymentRepo{s} }
func (s *Store) Refunds() repository.RefundRepository { return refundRepo{s} }

var _ repository.TxManager = (*Store)(nil)

// AddFlight stores f, assigning an id when it has none.
func (s *Store) AddFlight(f domain.Flight) domain.Flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == 0 {
		s.nextFlight++
		f.ID = s.nextFlight
	} else if f.ID > s.nextFlight {
		s.nextFlight = f.ID
	}
	if f.Status == "" {
		f.Status = domain.FlightStatusScheduled
	}
	f.CreatedAt, f.UpdatedAt = s.now(), s.now()
	s.flights[f.ID] = f
	return f
}

// SetFlightStatus changes the operational status of a stored flight.
func (s *Store) SetFlightStatus(id int64, status domain.FlightStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.flights[id]; ok {
		f.Status = status
		f.UpdatedAt = s.now()
		s.flights[id] = f
	}
}

// AddSeats lays out rows of seats on an aircraft, one seat per letter.
func (s *Store) AddSeats(aircraftID int64, class domain.TravelClass, firstRow, lastRow int, letters string) []domain.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []domain.Seat
	for row := firstRow; row <= lastRow; row++ {
		for _, l := range letters {
			s.nextSeat++
			seat := domain.Seat{
				ID:          s.nextSeat,
				AircraftID:  aircraftID,
				SeatNumber:  seatNumber(row, string(l)),
				Row:         row,
				Letter:      string(l),
				TravelClass: class,
			}
			s.seats[seat.ID] = seat
			added = append(added, seat)
		}
	}
	return added
}

func seatNumber(row int, letter string) string {
	return strconv.Itoa(row) + strings.ToUpper(letter)
}

type identityRepo struct{ *Store }

func (r identityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	defer r.lock(ctx)()
	i, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &i, nil
}

func (r identityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	defer r.lock(ctx)()
	return r.byEmail(email)
}

func (r identityRepo) byEmail(email string) (*domain.Identity, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	for _, i := range r.identities {
		if strings.ToLower(i.Email) == key {
			found := i
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r identityRepo) CreateIfAbsent(ctx context.Context, identity *domain.Identity) (*domain.Identity, bool, error) {
	defer r.lock(ctx)()
	if existing, err := r.byEmail(identity.Email); err == nil {
		return existing, false, nil
	}
	stored := *identity
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = r.now()
	r.identities[stored.ID] = stored
	return &stored, true, nil
}

type flightRepo struct{ *Store }

func (r flightRepo) List(ctx context.Context) ([]domain.Flight, error) {
	defer r.lock(ctx)()
	flights := make([]domain.Flight, 0, len(r.flights))
	for _, f := range r.flights {
		flights = append(flights, f)
	}
	sort.Slice(flights, func(i, j int) bool {
		if flights[i].DepartureTime.Equal(flights[j].DepartureTime) {
			return flights[i].ID < flights[j].ID
		}
		return flights[i].DepartureTime.Before(flights[j].DepartureTime)
	})
	return flights, nil
}

func (r flightRepo) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	defer r.lock(ctx)()
	f, ok := r.flights[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

type seatRepo struct{ *Store }

func (r seatRepo) GetByNumber(ctx context.Context, aircraftID int64, number string) (*domain.Seat, error) {
	defer r.lock(ctx)()
	for _, seat := range r.seats {
		if seat.AircraftID == aircraftID && strings.EqualFold(seat.SeatNumber, number) {
			found := seat
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r seatRepo) ListFree(ctx context.Context, flightID, aircraftID int64, class domain.TravelClass, limit int) ([]domain.Seat, error) {
	defer r.lock(ctx)()
	taken := make(map[int64]bool)
	for _, a := range r.allocations {
		if a.FlightID == flightID {
			taken[a.SeatID] = true
		}
	}

	free := make([]domain.Seat, 0)
	for _, seat := range r.seats {
		if seat.AircraftID != aircraftID || taken[seat.ID] {
			continue
		}
		if class != "" && seat.TravelClass != class {
			continue
		}
		free = append(free, seat)
	}
	sort.Slice(free, func(i, j int) bool {
		if free[i].Row == free[j].Row {
			return free[i].Letter < free[j].Letter
		}
		return free[i].Row < free[j].Row
	})
	if limit > 0 && len(free) > limit {
		free = free[:limit]
	}
	return free, nil
}
