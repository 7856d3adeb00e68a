package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/Domenick1991/airticket/internal/repository/memory"
	"github.com/Domenick1991/airticket/internal/service/booking"
	"github.com/Domenick1991/airticket/internal/service/identity"
	"github.com/Domenick1991/airticket/internal/service/payment"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResponse), args.Error(1)
}

func (m *MockGateway) Query(ctx context.Context, orderID, requestID string) (*gateway.QueryResponse, error) {
	args := m.Called(ctx, orderID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.QueryResponse), args.Error(1)
}

func (m *MockGateway) VerifyCallback(cb gateway.Callback) error {
	return m.Called(cb).Error(0)
}

func (m *MockGateway) SuccessCode() int { return 0 }

func (m *MockGateway) IsPending(code int) bool { return code == 1000 }

type fixture struct {
	store    *memory.Store
	ledger   *booking.BookingService
	payments *payment.PaymentService
	gw       *MockGateway
	service  *CheckoutService
	booking  *domain.Booking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	flight := store.AddFlight(domain.Flight{Number: "VN210", AircraftID: 3, DepartureTime: time.Now().Add(48 * time.Hour)})
	store.AddSeats(3, domain.TravelClassEconomy, 10, 10, "AB")

	resolver := identity.NewResolver(store.Identities(), logger, identity.WithHashCost(bcrypt.MinCost))
	ledger := booking.NewBookingService(store.Bookings(), store.Flights(), store.Allocations(), store.Refunds(), resolver, logger, booking.WithTxManager(store))
	payments := payment.NewPaymentService(store.Payments(), store, ledger, logger, payment.WithDispatcher(func(fn func()) { fn() }))

	gw := &MockGateway{}
	service := NewCheckoutService(gw, ledger, payments, store.Payments(), logger)

	b, err := ledger.CreateBooking(context.Background(), booking.CreateBookingInput{
		ContactEmail: "checkout@example.com",
		Legs:         []booking.LegInput{{FlightID: flight.ID, TravelClass: domain.TravelClassEconomy, FareAmount: 1_500_000}},
		Passengers:   []booking.PassengerInput{{Type: domain.PassengerAdult, FirstName: "An", LastName: "Tran"}},
	})
	require.NoError(t, err)

	return &fixture{store: store, ledger: ledger, payments: payments, gw: gw, service: service, booking: b}
}

func (f *fixture) initiate(t *testing.T) *InitiateResult {
	t.Helper()
	f.gw.On("Initiate", mock.Anything, mock.Anything).Return(&gateway.InitiateResponse{ResultCode: 0, PayURL: "https://pay.example/x", Raw: `{"resultCode":0}`}, nil).Once()
	res, err := f.service.Initiate(context.Background(), InitiateInput{BookingID: f.booking.ID})
	require.NoError(t, err)
	return res
}

func TestCheckoutService_Initiate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.initiate(t)
	assert.Equal(t, "https://pay.example/x", res.PayURL)
	assert.Contains(t, res.OrderID, f.booking.Reference)

	p, err := f.store.Payments().GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, res.OrderID, p.GatewayOrderID)
	assert.NotEmpty(t, p.GatewayRequestID)
	assert.Equal(t, `{"resultCode":0}`, p.GatewayResponse)
	assert.Equal(t, f.booking.TotalAmount, p.Amount)

	// A second attempt reuses the pending payment with a new order id.
	again := f.initiate(t)
	assert.Equal(t, res.PaymentID, again.PaymentID)
	assert.NotEqual(t, res.OrderID, again.OrderID)

	payments, err := f.store.Payments().ListByBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCheckoutService_Initiate_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gw.On("Initiate", mock.Anything, mock.Anything).Return(&gateway.InitiateResponse{ResultCode: 22, Message: "amount out of range", Raw: `{"resultCode":22}`}, nil).Once()
	_, err := f.service.Initiate(ctx, InitiateInput{BookingID: f.booking.ID})
	require.Error(t, err)
	assert.Equal(t, apperr.GatewayRejected, apperr.KindOf(err))

	payments, err := f.store.Payments().ListByBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusPending, payments[0].Status)

	f.gw.On("Initiate", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
	_, err = f.service.Initiate(ctx, InitiateInput{BookingID: f.booking.ID})
	assert.Equal(t, apperr.GatewayRejected, apperr.KindOf(err))
}

func TestCheckoutService_Initiate_BookingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CancelBooking(ctx, f.booking.ID)
	require.NoError(t, err)

	_, err = f.service.Initiate(ctx, InitiateInput{BookingID: f.booking.ID})
	assert.Equal(t, apperr.NotAllowed, apperr.KindOf(err))
	f.gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestCheckoutService_HandleCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initiate(t)

	cb := gateway.Callback{OrderID: res.OrderID, Amount: f.booking.TotalAmount, ResultCode: 0, TransID: 4242, Message: "Successful."}
	f.gw.On("VerifyCallback", cb).Return(nil)

	p, err := f.service.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "4242", p.GatewayTransactionID)

	b, err := f.ledger.GetBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, b.Status)
	assert.Equal(t, domain.BookingPaymentPaid, b.PaymentStatus)

	// The return redirect carries the same result and changes nothing.
	again, err := f.service.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, p.PaidAt, again.PaidAt)

	// A late failure cannot undo the completed payment.
	late := cb
	late.ResultCode = 1006
	f.gw.On("VerifyCallback", late).Return(nil)
	after, err := f.service.HandleCallback(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, after.Status)
}

func TestCheckoutService_HandleCallback_EarlierOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.initiate(t)
	second := f.initiate(t)
	require.Equal(t, first.PaymentID, second.PaymentID)

	orders, err := f.store.Payments().ListGatewayOrders(ctx, first.PaymentID)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	// The first pay URL expiring does not fail the payment while the second
	// order is still open.
	expired := gateway.Callback{OrderID: first.OrderID, Amount: f.booking.TotalAmount, ResultCode: 1005, Message: "Expired"}
	f.gw.On("VerifyCallback", expired).Return(nil)
	p, err := f.service.HandleCallback(ctx, expired)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)

	paid := gateway.Callback{OrderID: first.OrderID, Amount: f.booking.TotalAmount, ResultCode: 0, TransID: 99, Message: "Successful."}
	f.gw.On("VerifyCallback", paid).Return(nil)
	p, err = f.service.HandleCallback(ctx, paid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "99", p.GatewayTransactionID)

	b, err := f.ledger.GetBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentPaid, b.PaymentStatus)

	lookup, err := f.service.LookupOrder(ctx, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, lookup.Payment.ID)
}

func TestCheckoutService_HandleCallback_Failure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initiate(t)

	cb := gateway.Callback{OrderID: res.OrderID, Amount: f.booking.TotalAmount, ResultCode: 1006, Message: "User denied"}
	f.gw.On("VerifyCallback", cb).Return(nil)

	p, err := f.service.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, "User denied", p.GatewayMessage)

	b, err := f.ledger.GetBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentFailed, b.PaymentStatus)
	assert.Equal(t, domain.BookingStatusReserved, b.Status)
}

func TestCheckoutService_HandleCallback_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initiate(t)

	testCases := []struct {
		name      string
		cb        gateway.Callback
		verifyErr error
		want      apperr.Kind
	}{
		{
			name:      "bad signature",
			cb:        gateway.Callback{OrderID: res.OrderID, Amount: f.booking.TotalAmount, Signature: "forged"},
			verifyErr: gateway.ErrBadSignature,
			want:      apperr.Invalid,
		},
		{
			name: "unknown order",
			cb:   gateway.Callback{OrderID: "NOPE-1", Amount: 1},
			want: apperr.NotFound,
		},
		{
			name: "amount mismatch",
			cb:   gateway.Callback{OrderID: res.OrderID, Amount: 1},
			want: apperr.Invalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f.gw.On("VerifyCallback", tc.cb).Return(tc.verifyErr)
			_, err := f.service.HandleCallback(ctx, tc.cb)
			require.Error(t, err)
			assert.Equal(t, tc.want, apperr.KindOf(err))
		})
	}

	payments, err := f.store.Payments().ListByBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusPending, payments[0].Status)
}

func TestCheckoutService_LookupOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initiate(t)

	lookup, err := f.service.LookupOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, f.booking.Reference, lookup.Booking.Reference)
	assert.Equal(t, res.PaymentID, lookup.Payment.ID)

	_, err = f.service.LookupOrder(ctx, "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCheckoutService_Reconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initiate(t)

	f.gw.On("Query", mock.Anything, res.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 1000}, nil).Once()
	report, err := f.service.Reconcile(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Pending)

	f.gw.On("Query", mock.Anything, res.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 0, TransID: 77, Raw: "{}"}, nil).Once()
	report, err = f.service.Reconcile(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)

	p, err := f.store.Payments().GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "77", p.GatewayTransactionID)

	// Nothing is left to reconcile.
	report, err = f.service.Reconcile(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	f.gw.AssertExpectations(t)
}

func TestCheckoutService_Reconcile_EarlierOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.initiate(t)
	second := f.initiate(t)

	f.gw.On("Query", mock.Anything, first.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 0, TransID: 31, Raw: "{}"}, nil).Once()
	f.gw.On("Query", mock.Anything, second.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 1000}, nil).Maybe()

	report, err := f.service.Reconcile(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Completed)

	p, err := f.store.Payments().GetByID(ctx, first.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "31", p.GatewayTransactionID)
}

func TestCheckoutService_Reconcile_CurrentOrderFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.initiate(t)
	second := f.initiate(t)

	f.gw.On("Query", mock.Anything, first.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 1005}, nil).Once()
	f.gw.On("Query", mock.Anything, second.OrderID, mock.Anything).Return(&gateway.QueryResponse{ResultCode: 1006, Message: "User denied"}, nil).Once()

	report, err := f.service.Reconcile(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	p, err := f.store.Payments().GetByID(ctx, second.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	f.gw.AssertExpectations(t)
}

func TestCheckoutService_Reconcile_QueryError(t *testing.T) {
	f := newFixture(t)
	res := f.initiate(t)

	f.gw.On("Query", mock.Anything, res.OrderID, mock.Anything).Return(nil, errors.New("timeout"))
	report, err := f.service.Reconcile(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
}
