package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
)

type bookingRepo struct{ *Store }

func (r bookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	defer r.lock(ctx)()
	for _, b := range r.bookings {
		if b.Reference == booking.Reference {
			return repository.ErrDuplicateReference
		}
	}

	now := r.now()
	booking.CreatedAt, booking.UpdatedAt = now, now
	for i := range booking.Passengers {
		booking.Passengers[i].BookingID = booking.ID
	}
	for i := range booking.Legs {
		booking.Legs[i].BookingID = booking.ID
		booking.Legs[i].CreatedAt = now
	}

	stored := *booking
	stored.Identity, stored.Payments = nil, nil
	stored.Legs, stored.Passengers = nil, nil
	r.bookings[booking.ID] = stored
	r.passengers[booking.ID] = append([]domain.Passenger(nil), booking.Passengers...)

	legs := make([]domain.BookingFlight, len(booking.Legs))
	for i, leg := range booking.Legs {
		leg.Flight, leg.Allocations = nil, nil
		leg.SeatPreferences = append([]domain.SeatPreference(nil), leg.SeatPreferences...)
		legs[i] = leg
	}
	r.legs[booking.ID] = legs
	return nil
}

func (r bookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	defer r.lock(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.detail(b), nil
}

func (r bookingRepo) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	defer r.lock(ctx)()
	for _, b := range r.bookings {
		if b.Reference == reference {
			return r.detail(b), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r bookingRepo) detail(b domain.Booking) *domain.Booking {
	b.Legs = r.legsOf(b.ID)
	for i := range b.Legs {
		b.Legs[i].Allocations = r.allocationsOf(b.Legs[i].ID)
	}
	b.Passengers = append([]domain.Passenger{}, r.passengers[b.ID]...)
	b.Payments = r.paymentsOf(b.ID)
	return &b
}

func (r bookingRepo) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.Booking, error) {
	defer r.lock(ctx)()
	bookings := make([]domain.Booking, 0)
	for _, b := range r.bookings {
		if b.IdentityID == identityID {
			b.Legs = r.legsOf(b.ID)
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (r bookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status *domain.BookingStatus, paymentStatus *domain.BookingPaymentStatus) (*domain.Booking, error) {
	defer r.lock(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if status != nil && !domain.CanMoveBooking(b.Status, *status) {
		return nil, repository.ErrBookingCancelled
	}
	if paymentStatus != nil && !r.settles(id, *paymentStatus) {
		return nil, repository.ErrPaymentNotSettled
	}
	if status != nil {
		b.Status = *status
	}
	if paymentStatus != nil {
		b.PaymentStatus = *paymentStatus
	}
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

// settles reports whether the booking's payments back status.
func (r bookingRepo) settles(bookingID uuid.UUID, status domain.BookingPaymentStatus) bool {
	paid := domain.Booking{Payments: r.paymentsOf(bookingID)}
	switch status {
	case domain.BookingPaymentPaid:
		return paid.HasCompletedPayment()
	case domain.BookingPaymentRefunded:
		return paid.WasPaid()
	}
	return true
}

func (r bookingRepo) UpdateContact(ctx context.Context, id uuid.UUID, email, phone string) (*domain.Booking, error) {
	defer r.lock(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.ContactEmail, b.ContactPhone = email, phone
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

func (r bookingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.lock(ctx)()
	if _, ok := r.bookings[id]; !ok {
		return repository.ErrNotFound
	}
	for _, leg := range r.legs[id] {
		for aid, a := range r.allocations {
			if a.BookingFlightID == leg.ID {
				delete(r.allocations, aid)
			}
		}
	}
	for pid, p := range r.payments {
		if p.BookingID == id {
			delete(r.payments, pid)
		}
	}
	for orderID, o := range r.orders {
		if _, ok := r.payments[o.PaymentID]; !ok {
			delete(r.orders, orderID)
		}
	}
	delete(r.legs, id)
	delete(r.passengers, id)
	delete(r.bookings, id)
	return nil
}

func (r bookingRepo) GetBookingFlight(ctx context.Context, id uuid.UUID) (*domain.BookingFlight, error) {
	defer r.lock(ctx)()
	leg, ok := r.leg(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	leg.Allocations = r.allocationsOf(leg.ID)
	return &leg, nil
}

func (s *Store) legsOf(bookingID uuid.UUID) []domain.BookingFlight {
	return append([]domain.BookingFlight{}, s.legs[bookingID]...)
}

func (s *Store) leg(id uuid.UUID) (domain.BookingFlight, bool) {
	for _, legs := range s.legs {
		for _, leg := range legs {
			if leg.ID == id {
				return leg, true
			}
		}
	}
	return domain.BookingFlight{}, false
}

func (s *Store) allocationsOf(bookingFlightID uuid.UUID) []domain.SeatAllocation {
	allocs := make([]domain.SeatAllocation, 0)
	for _, a := range s.allocations {
		if a.BookingFlightID == bookingFlightID {
			a.SeatNumber = s.seats[a.SeatID].SeatNumber
			allocs = append(allocs, a)
		}
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].SeatNumber < allocs[j].SeatNumber })
	return allocs
}

func (s *Store) paymentsOf(bookingID uuid.UUID) []domain.Payment {
	payments := make([]domain.Payment, 0)
	for _, p := range s.payments {
		if p.BookingID == bookingID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments
}

type allocationRepo struct{ *Store }

// Create checks both uniqueness rules under the store lock.
func (r allocationRepo) Create(ctx context.Context, allocation *domain.SeatAllocation) error {
	defer r.lock(ctx)()
	for _, a := range r.allocations {
		if a.FlightID == allocation.FlightID && a.SeatID == allocation.SeatID {
			return repository.ErrSeatTaken
		}
		if a.BookingFlightID == allocation.BookingFlightID && a.PassengerID == allocation.PassengerID {
			return repository.ErrPassengerSeated
		}
	}
	if allocation.ID == uuid.Nil {
		allocation.ID = uuid.New()
	}
	allocation.CreatedAt = r.now()
	allocation.SeatNumber = r.seats[allocation.SeatID].SeatNumber
	r.allocations[allocation.ID] = *allocation
	return nil
}

func (r allocationRepo) ListByBookingFlight(ctx context.Context, bookingFlightID uuid.UUID) ([]domain.SeatAllocation, error) {
	defer r.lock(ctx)()
	return r.allocationsOf(bookingFlightID), nil
}

func (r allocationRepo) IsSeatTaken(ctx context.Context, flightID, seatID int64) (bool, error) {
	defer r.lock(ctx)()
	for _, a := range r.allocations {
		if a.FlightID == flightID && a.SeatID == seatID {
			return true, nil
		}
	}
	return false, nil
}

func (r allocationRepo) DeleteByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	defer r.lock(ctx)()
	legIDs := make(map[uuid.UUID]bool)
	for _, leg := range r.legs[bookingID] {
		legIDs[leg.ID] = true
	}
	var n int64
	for id, a := range r.allocations {
		if legIDs[a.BookingFlightID] {
			delete(r.allocations, id)
			n++
		}
	}
	return n, nil
}

type paymentRepo struct{ *Store }

func (r paymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	defer r.lock(ctx)()
	if _, taken := r.orders[payment.GatewayOrderID]; payment.GatewayOrderID != "" && taken {
		return repository.ErrDuplicateOrderID
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt, payment.UpdatedAt = r.now(), r.now()
	r.payments[payment.ID] = *payment
	if payment.GatewayOrderID != "" {
		r.addOrder(payment.ID, payment.GatewayOrderID, payment.GatewayRequestID)
	}
	return nil
}

func (r paymentRepo) addOrder(paymentID uuid.UUID, orderID, requestID string) {
	r.orders[orderID] = domain.GatewayOrder{
		OrderID:   orderID,
		RequestID: requestID,
		PaymentID: paymentID,
		CreatedAt: r.now(),
	}
}

func (r paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	defer r.lock(ctx)()
	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	defer r.lock(ctx)()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p, ok := r.payments[o.PaymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) ListGatewayOrders(ctx context.Context, paymentID uuid.UUID) ([]domain.GatewayOrder, error) {
	defer r.lock(ctx)()
	orders := make([]domain.GatewayOrder, 0)
	for _, o := range r.orders {
		if o.PaymentID == paymentID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].OrderID < orders[j].OrderID
	})
	return orders, nil
}

func (r paymentRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Payment, error) {
	defer r.lock(ctx)()
	return r.paymentsOf(bookingID), nil
}

func (r paymentRepo) ListAwaitingGateway(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	defer r.lock(ctx)()
	pending := make([]domain.Payment, 0)
	for _, p := range r.payments {
		if p.Status == domain.PaymentStatusPending && p.GatewayOrderID != "" && p.UpdatedAt.Before(before) {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].UpdatedAt.Before(pending[j].UpdatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r paymentRepo) SetGatewayRequest(ctx context.Context, id uuid.UUID, orderID, requestID string) error {
	defer r.lock(ctx)()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return repository.ErrNotFound
	}
	if _, taken := r.orders[orderID]; taken {
		return repository.ErrDuplicateOrderID
	}
	p.GatewayOrderID, p.GatewayRequestID = orderID, requestID
	p.UpdatedAt = r.now()
	r.payments[id] = p
	r.addOrder(id, orderID, requestID)
	return nil
}

func (r paymentRepo) SaveGatewayResponse(ctx context.Context, id uuid.UUID, raw string) error {
	defer r.lock(ctx)()
	p, ok := r.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.GatewayResponse = raw
	p.UpdatedAt = r.now()
	r.payments[id] = p
	return nil
}

func (r paymentRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, bool, error) {
	defer r.lock(ctx)()
	p, ok := r.payments[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if p.Status != from {
		return &p, false, nil
	}

	p.Status = to
	if update.TransactionID != "" {
		p.GatewayTransactionID = update.TransactionID
	}
	if update.Message != "" {
		p.GatewayMessage = update.Message
	}
	if update.RawResponse != "" {
		p.GatewayResponse = update.RawResponse
	}
	if update.PaidAt != nil {
		p.PaidAt = update.PaidAt
	}
	p.UpdatedAt = r.now()
	r.payments[id] = p
	return &p, true, nil
}

type refundRepo struct{ *Store }

func (r refundRepo) Create(ctx context.Context, refund *domain.RefundHistory) error {
	defer r.lock(ctx)()
	for _, h := range r.refunds {
		if h.BookingID == refund.BookingID && h.Status == domain.RefundStatusPending {
			return repository.ErrPendingRefundExists
		}
	}
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	refund.CreatedAt, refund.UpdatedAt = r.now(), r.now()
	r.refunds[refund.ID] = *refund
	return nil
}

func (r refundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundHistory, error) {
	defer r.lock(ctx)()
	h, ok := r.refunds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &h, nil
}

func (r refundRepo) List(ctx context.Context) ([]domain.RefundHistory, error) {
	defer r.lock(ctx)()
	return r.filter(func(domain.RefundHistory) bool { return true }), nil
}

func (r refundRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.RefundHistory, error) {
	defer r.lock(ctx)()
	return r.filter(func(h domain.RefundHistory) bool { return h.BookingID == bookingID }), nil
}

func (r refundRepo) filter(keep func(domain.RefundHistory) bool) []domain.RefundHistory {
	refunds := make([]domain.RefundHistory, 0)
	for _, h := range r.refunds {
		if keep(h) {
			refunds = append(refunds, h)
		}
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].CreatedAt.After(refunds[j].CreatedAt) })
	return refunds
}

func (r refundRepo) Decide(ctx context.Context, id uuid.UUID, status domain.RefundStatus, notes, actor string, processedAt *time.Time) (*domain.RefundHistory, bool, error) {
	defer r.lock(ctx)()
	h, ok := r.refunds[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if h.Status != domain.RefundStatusPending {
		return &h, false, nil
	}
	h.Status = status
	h.AdminNotes = notes
	h.ProcessedBy = actor
	h.ProcessedAt = processedAt
	h.UpdatedAt = r.now()
	r.refunds[id] = h
	return &h, true, nil
}
