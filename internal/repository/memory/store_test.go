package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooking(t *testing.T, s *Store) (*domain.Booking, domain.Flight) {
	t.Helper()
	flight := s.AddFlight(domain.Flight{Number: "VN100", AircraftID: 1, DepartureTime: time.Now().Add(24 * time.Hour)})
	s.AddSeats(1, domain.TravelClassEconomy, 1, 2, "AB")

	passenger := domain.Passenger{ID: uuid.New(), Type: domain.PassengerAdult, FirstName: "An", LastName: "Nguyen"}
	booking := &domain.Booking{
		ID:            uuid.New(),
		Reference:     "ABC12345",
		IdentityID:    uuid.New(),
		TotalAmount:   1000,
		Status:        domain.BookingStatusReserved,
		PaymentStatus: domain.BookingPaymentPending,
		ContactEmail:  "an@example.com",
		Passengers:    []domain.Passenger{passenger},
		Legs: []domain.BookingFlight{{
			ID:          uuid.New(),
			FlightID:    flight.ID,
			TravelClass: domain.TravelClassEconomy,
			FareAmount:  1000,
		}},
	}
	require.NoError(t, s.Bookings().Create(context.Background(), booking))
	return booking, flight
}

func TestBookingCreateAndLoad(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)

	got, err := s.Bookings().GetByReference(context.Background(), "ABC12345")
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
	assert.Len(t, got.Legs, 1)
	assert.Len(t, got.Passengers, 1)
	assert.Equal(t, booking.ID, got.Legs[0].BookingID)

	dup := *booking
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.Bookings().Create(context.Background(), &dup), repository.ErrDuplicateReference)
}

func TestUpdateStatusCancelledIsTerminal(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	ctx := context.Background()

	cancelled := domain.BookingStatusCancelled
	_, err := s.Bookings().UpdateStatus(ctx, booking.ID, &cancelled, nil)
	require.NoError(t, err)

	confirmed := domain.BookingStatusConfirmed
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, &confirmed, nil)
	assert.ErrorIs(t, err, repository.ErrBookingCancelled)

	paid := domain.BookingPaymentPaid
	require.NoError(t, s.Payments().Create(ctx, &domain.Payment{BookingID: booking.ID, Amount: 1000, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusCompleted}))
	got, err := s.Bookings().UpdateStatus(ctx, booking.ID, nil, &paid)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	assert.Equal(t, domain.BookingPaymentPaid, got.PaymentStatus)
}

func TestUpdateStatusPaymentMustBeSettled(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	ctx := context.Background()
	paid, refunded := domain.BookingPaymentPaid, domain.BookingPaymentRefunded

	_, err := s.Bookings().UpdateStatus(ctx, booking.ID, nil, &paid)
	assert.ErrorIs(t, err, repository.ErrPaymentNotSettled)
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, nil, &refunded)
	assert.ErrorIs(t, err, repository.ErrPaymentNotSettled)

	payment := &domain.Payment{BookingID: booking.ID, Amount: 1000, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusPending}
	require.NoError(t, s.Payments().Create(ctx, payment))
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, nil, &paid)
	assert.ErrorIs(t, err, repository.ErrPaymentNotSettled)

	_, _, err = s.Payments().Transition(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, domain.PaymentUpdate{})
	require.NoError(t, err)
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, nil, &paid)
	require.NoError(t, err)
	_, _, err = s.Payments().Transition(ctx, payment.ID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, domain.PaymentUpdate{})
	require.NoError(t, err)
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, nil, &paid)
	assert.ErrorIs(t, err, repository.ErrPaymentNotSettled)
	got, err := s.Bookings().UpdateStatus(ctx, booking.ID, nil, &refunded)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentRefunded, got.PaymentStatus)

	// The booking status alone is unaffected.
	confirmed := domain.BookingStatusConfirmed
	_, err = s.Bookings().UpdateStatus(ctx, booking.ID, &confirmed, nil)
	assert.NoError(t, err)
}

func TestAllocationUniqueness(t *testing.T) {
	s := NewStore()
	booking, flight := seedBooking(t, s)
	ctx := context.Background()
	leg := booking.Legs[0]
	pid := booking.Passengers[0].ID

	seats, err := s.Seats().ListFree(ctx, flight.ID, 1, domain.TravelClassEconomy, 0)
	require.NoError(t, err)
	require.Len(t, seats, 4)
	assert.Equal(t, "1A", seats[0].SeatNumber)
	assert.Equal(t, "2B", seats[3].SeatNumber)

	first := &domain.SeatAllocation{BookingFlightID: leg.ID, FlightID: flight.ID, SeatID: seats[0].ID, PassengerID: pid}
	require.NoError(t, s.Allocations().Create(ctx, first))
	assert.Equal(t, "1A", first.SeatNumber)

	sameSeat := &domain.SeatAllocation{BookingFlightID: uuid.New(), FlightID: flight.ID, SeatID: seats[0].ID, PassengerID: uuid.New()}
	assert.ErrorIs(t, s.Allocations().Create(ctx, sameSeat), repository.ErrSeatTaken)

	samePassenger := &domain.SeatAllocation{BookingFlightID: leg.ID, FlightID: flight.ID, SeatID: seats[1].ID, PassengerID: pid}
	assert.ErrorIs(t, s.Allocations().Create(ctx, samePassenger), repository.ErrPassengerSeated)

	taken, err := s.Allocations().IsSeatTaken(ctx, flight.ID, seats[0].ID)
	require.NoError(t, err)
	assert.True(t, taken)

	free, err := s.Seats().ListFree(ctx, flight.ID, 1, domain.TravelClassEconomy, 0)
	require.NoError(t, err)
	assert.Len(t, free, 3)

	n, err := s.Allocations().DeleteByBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConcurrentAllocationsOneWinner(t *testing.T) {
	s := NewStore()
	_, flight := seedBooking(t, s)
	seat, err := s.Seats().GetByNumber(context.Background(), 1, "1b")
	require.NoError(t, err)

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Allocations().Create(context.Background(), &domain.SeatAllocation{
				BookingFlightID: uuid.New(), FlightID: flight.ID, SeatID: seat.ID, PassengerID: uuid.New(),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		failed := domain.BookingPaymentFailed
		if _, err := s.Bookings().UpdateStatus(ctx, booking.ID, nil, &failed); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Bookings().GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentPending, got.PaymentStatus)
}

func TestPaymentTransitionCompareAndSet(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	ctx := context.Background()

	payment := &domain.Payment{BookingID: booking.ID, Amount: 1000, Method: domain.PaymentMethodGateway, Status: domain.PaymentStatusPending}
	require.NoError(t, s.Payments().Create(ctx, payment))
	require.NoError(t, s.Payments().SetGatewayRequest(ctx, payment.ID, "ORD-1", "REQ-1"))

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Payments().Transition(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, domain.PaymentUpdate{TransactionID: "T1"})
			if err == nil && ok {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changed)

	got, err := s.Payments().GetByGatewayOrderID(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "T1", got.GatewayTransactionID)

	other := &domain.Payment{BookingID: booking.ID, Amount: 1, Status: domain.PaymentStatusPending, GatewayOrderID: "ORD-1"}
	assert.ErrorIs(t, s.Payments().Create(ctx, other), repository.ErrDuplicateOrderID)
}

func TestGatewayOrderHistory(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	ctx := context.Background()

	payment := &domain.Payment{BookingID: booking.ID, Amount: 1000, Method: domain.PaymentMethodGateway, Status: domain.PaymentStatusPending}
	require.NoError(t, s.Payments().Create(ctx, payment))
	require.NoError(t, s.Payments().SetGatewayRequest(ctx, payment.ID, "ORD-1", "REQ-1"))
	require.NoError(t, s.Payments().SetGatewayRequest(ctx, payment.ID, "ORD-2", "REQ-2"))
	assert.ErrorIs(t, s.Payments().SetGatewayRequest(ctx, payment.ID, "ORD-1", "REQ-3"), repository.ErrDuplicateOrderID)

	for _, orderID := range []string{"ORD-1", "ORD-2"} {
		got, err := s.Payments().GetByGatewayOrderID(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, got.ID)
		assert.Equal(t, "ORD-2", got.GatewayOrderID)
	}

	orders, err := s.Payments().ListGatewayOrders(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.ElementsMatch(t, []string{"REQ-1", "REQ-2"}, []string{orders[0].RequestID, orders[1].RequestID})

	require.NoError(t, s.Bookings().Delete(ctx, booking.ID))
	_, err = s.Payments().GetByGatewayOrderID(ctx, "ORD-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRefundPendingUniqueAndDecide(t *testing.T) {
	s := NewStore()
	booking, _ := seedBooking(t, s)
	ctx := context.Background()

	refund := &domain.RefundHistory{BookingID: booking.ID, Amount: 1000, Status: domain.RefundStatusPending, Reason: domain.RefundReasonOther}
	require.NoError(t, s.Refunds().Create(ctx, refund))

	second := &domain.RefundHistory{BookingID: booking.ID, Amount: 1000, Status: domain.RefundStatusPending}
	assert.ErrorIs(t, s.Refunds().Create(ctx, second), repository.ErrPendingRefundExists)

	got, changed, err := s.Refunds().Decide(ctx, refund.ID, domain.RefundStatusRejected, "no", "staff@example.com", nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.RefundStatusRejected, got.Status)

	_, changed, err = s.Refunds().Decide(ctx, refund.ID, domain.RefundStatusApproved, "", "staff@example.com", nil)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.Refunds().Create(ctx, second))
}

func TestIdentityCreateIfAbsent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, created, err := s.Identities().CreateIfAbsent(ctx, &domain.Identity{Email: "guest@example.com", Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.Identities().CreateIfAbsent(ctx, &domain.Identity{Email: "Guest@Example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}
