// Package checkout drives hosted gateway payments: it opens orders with the
// provider and turns callbacks, returns and reconciliation results into
// payment transitions.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/Domenick1991/airticket/internal/service/payment"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CheckoutUseCase interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	// HandleCallback applies a provider notification. The server-to-server
	// IPN and the customer's return redirect both land here.
	HandleCallback(ctx context.Context, cb gateway.Callback) (*domain.Payment, error)
	LookupOrder(ctx context.Context, orderID string) (*OrderLookup, error)
	Reconcile(ctx context.Context, before time.Time, limit int) (*ReconcileReport, error)
}

type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	Query(ctx context.Context, orderID, requestID string) (*gateway.QueryResponse, error)
	VerifyCallback(cb gateway.Callback) error
	SuccessCode() int
	IsPending(code int) bool
}

type Ledger interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

type Payments interface {
	Create(ctx context.Context, input payment.CreatePaymentInput) (*domain.Payment, error)
	TransitionTo(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error)
}

type InitiateInput struct {
	BookingID   uuid.UUID `json:"booking_id"`
	Amount      int64     `json:"amount"`
	RedirectURL string    `json:"redirect_url"`
	IPNURL      string    `json:"ipn_url"`
}

type InitiateResult struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	PayURL    string    `json:"pay_url"`
}

type OrderLookup struct {
	Payment *domain.Payment
	Booking domain.BookingSummary
}

type ReconcileReport struct {
	Checked   int
	Completed int
	Failed    int
	Pending   int
	Errors    int
}

type CheckoutService struct {
	gateway  Gateway
	ledger   Ledger
	payments Payments
	store    repository.PaymentRepository
	log      logrus.FieldLogger
}

func NewCheckoutService(gw Gateway, ledger Ledger, payments Payments, store repository.PaymentRepository, logger logrus.FieldLogger) *CheckoutService {
	return &CheckoutService{
		gateway:  gw,
		ledger:   ledger,
		payments: payments,
		store:    store,
		log:      logger,
	}
}

func (s *CheckoutService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	booking, err := s.ledger.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}

	p, err := s.pendingPayment(ctx, booking, input.Amount)
	if err != nil {
		return nil, err
	}

	// Every attempt gets a fresh order id; the provider rejects reuse.
	orderID := fmt.Sprintf("%s-%d", booking.Reference, time.Now().UnixNano())
	requestID := uuid.NewString()
	if err := s.store.SetGatewayRequest(ctx, p.ID, orderID, requestID); err != nil {
		return nil, apperr.InternalErr(err, "failed to record gateway request")
	}

	entry := s.log.WithFields(logrus.Fields{"payment_id": p.ID, "booking_id": booking.ID, "order_id": orderID})

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		OrderID:     orderID,
		RequestID:   requestID,
		Amount:      p.Amount,
		OrderInfo:   "Booking " + booking.Reference,
		ExtraData:   booking.ID.String(),
		RedirectURL: input.RedirectURL,
		IPNURL:      input.IPNURL,
	})
	if err != nil {
		entry.WithError(err).Error("gateway initiate failed")
		return nil, apperr.Wrap(err, apperr.GatewayRejected, "payment gateway unavailable")
	}
	if err := s.store.SaveGatewayResponse(ctx, p.ID, resp.Raw); err != nil {
		entry.WithError(err).Warn("failed to store gateway response")
	}
	if resp.ResultCode != s.gateway.SuccessCode() {
		entry.WithFields(logrus.Fields{"result_code": resp.ResultCode, "message": resp.Message}).Warn("gateway rejected payment")
		return nil, apperr.New(apperr.GatewayRejected, "gateway rejected payment: %s", resp.Message)
	}

	return &InitiateResult{PaymentID: p.ID, OrderID: orderID, PayURL: resp.PayURL}, nil
}

// pendingPayment reuses the booking's open gateway payment when the amount
// matches, and creates one otherwise.
func (s *CheckoutService) pendingPayment(ctx context.Context, booking *domain.Booking, amount int64) (*domain.Payment, error) {
	if booking.Status == domain.BookingStatusCancelled {
		return nil, apperr.NotAllowedErr("booking %s is cancelled", booking.Reference)
	}
	if booking.PaymentStatus == domain.BookingPaymentPaid {
		return nil, apperr.ConflictErr("booking %s is already paid", booking.Reference)
	}
	want := amount
	if want == 0 {
		want = booking.TotalAmount
	}

	existing, err := s.store.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list payments")
	}
	for i := range existing {
		p := existing[i]
		if p.Status == domain.PaymentStatusPending && p.Method == domain.PaymentMethodGateway && p.Amount == want {
			return &p, nil
		}
	}

	return s.payments.Create(ctx, payment.CreatePaymentInput{
		BookingID: booking.ID,
		Amount:    amount,
		Method:    domain.PaymentMethodGateway,
	})
}

func (s *CheckoutService) HandleCallback(ctx context.Context, cb gateway.Callback) (*domain.Payment, error) {
	if err := s.gateway.VerifyCallback(cb); err != nil {
		s.log.WithField("order_id", cb.OrderID).Warn("rejected gateway callback with bad signature")
		return nil, apperr.Wrap(err, apperr.Invalid, "invalid callback signature")
	}

	p, err := s.paymentByOrder(ctx, cb.OrderID)
	if err != nil {
		return nil, err
	}
	if cb.Amount != p.Amount {
		return nil, apperr.InvalidErr("callback amount %d does not match payment amount %d", cb.Amount, p.Amount)
	}

	raw, _ := json.Marshal(cb)
	return s.apply(ctx, p, cb.OrderID, cb.ResultCode, cb.TransID, cb.Message, string(raw))
}

func (s *CheckoutService) paymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := s.store.GetByGatewayOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("no payment for order %s", orderID)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load payment")
	}
	return p, nil
}

// apply moves a pending payment according to the provider result for
// orderID. Success on any order the payment was sent under completes it; a
// failure only counts for the current order, since a newer order may still
// be paid. Results for a payment that already left Pending are acknowledged
// and ignored.
func (s *CheckoutService) apply(ctx context.Context, p *domain.Payment, orderID string, resultCode int, transID int64, message, raw string) (*domain.Payment, error) {
	target := domain.PaymentStatusFailed
	if resultCode == s.gateway.SuccessCode() {
		target = domain.PaymentStatusCompleted
	}

	entry := s.log.WithFields(logrus.Fields{
		"payment_id":  p.ID,
		"order_id":    orderID,
		"result_code": resultCode,
	})
	if target == domain.PaymentStatusFailed && orderID != p.GatewayOrderID {
		entry.WithField("current_order_id", p.GatewayOrderID).Info("ignoring failure for superseded gateway order")
		return p, nil
	}
	if p.Status != domain.PaymentStatusPending && p.Status != target {
		entry.WithField("status", p.Status).Warn("ignoring gateway result for settled payment")
		return p, nil
	}

	update := domain.PaymentUpdate{Message: message, RawResponse: raw}
	if transID != 0 {
		update.TransactionID = strconv.FormatInt(transID, 10)
	}
	updated, err := s.payments.TransitionTo(ctx, p.ID, target, update)
	if apperr.Is(err, apperr.InvalidTransition) {
		// Lost a race with another result for the same payment.
		entry.WithError(err).Warn("ignoring gateway result for settled payment")
		return s.reload(ctx, p.ID)
	}
	return updated, err
}

func (s *CheckoutService) reload(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to reload payment")
	}
	return p, nil
}

func (s *CheckoutService) LookupOrder(ctx context.Context, orderID string) (*OrderLookup, error) {
	p, err := s.paymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	booking, err := s.ledger.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	return &OrderLookup{Payment: p, Booking: booking.Summary()}, nil
}

// Reconcile asks the provider about gateway payments still pending since
// before, for callbacks that never arrived.
func (s *CheckoutService) Reconcile(ctx context.Context, before time.Time, limit int) (*ReconcileReport, error) {
	stale, err := s.store.ListAwaitingGateway(ctx, before, limit)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to list pending payments")
	}

	report := &ReconcileReport{}
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &stale[i]
		report.Checked++
		entry := s.log.WithFields(logrus.Fields{"payment_id": p.ID, "order_id": p.GatewayOrderID})

		orderID, resp, err := s.settledOrder(ctx, p)
		if err != nil {
			report.Errors++
			entry.WithError(err).Warn("gateway query failed")
			continue
		}
		if resp == nil {
			report.Pending++
			continue
		}

		updated, err := s.apply(ctx, p, orderID, resp.ResultCode, resp.TransID, resp.Message, resp.Raw)
		if err != nil {
			report.Errors++
			entry.WithError(err).Warn("failed to apply reconciled result")
			continue
		}
		switch updated.Status {
		case domain.PaymentStatusCompleted:
			report.Completed++
		case domain.PaymentStatusFailed:
			report.Failed++
		}
	}

	s.log.WithFields(logrus.Fields{
		"checked":   report.Checked,
		"completed": report.Completed,
		"failed":    report.Failed,
		"pending":   report.Pending,
		"errors":    report.Errors,
	}).Info("gateway reconciliation finished")
	return report, nil
}

// settledOrder queries every order p was sent under. It returns the first
// successful order, otherwise the current order's final result, or a nil
// response while the current order is still open.
func (s *CheckoutService) settledOrder(ctx context.Context, p *domain.Payment) (string, *gateway.QueryResponse, error) {
	orders, err := s.store.ListGatewayOrders(ctx, p.ID)
	if err != nil {
		return "", nil, err
	}
	if len(orders) == 0 {
		orders = []domain.GatewayOrder{{OrderID: p.GatewayOrderID, RequestID: p.GatewayRequestID, PaymentID: p.ID}}
	}

	var (
		current    *gateway.QueryResponse
		currentErr error
	)
	for _, o := range orders {
		resp, err := s.gateway.Query(ctx, o.OrderID, o.RequestID)
		if err != nil {
			if o.OrderID == p.GatewayOrderID {
				currentErr = err
			} else {
				s.log.WithField("order_id", o.OrderID).WithError(err).Warn("gateway query failed for superseded order")
			}
			continue
		}
		if resp.ResultCode == s.gateway.SuccessCode() {
			return o.OrderID, resp, nil
		}
		if o.OrderID == p.GatewayOrderID {
			current = resp
		}
	}
	if currentErr != nil {
		return "", nil, currentErr
	}
	if current == nil || s.gateway.IsPending(current.ResultCode) {
		return "", nil, nil
	}
	return p.GatewayOrderID, current, nil
}

var _ CheckoutUseCase = (*CheckoutService)(nil)
