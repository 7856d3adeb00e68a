package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, booking_id, amount, method, status, coalesce(gateway_order_id, ''), gateway_request_id, gateway_transaction_id, gateway_message, gateway_response, paid_at, created_at, updated_at`

type PGPaymentRepository struct {
	pgBase
}

func NewPaymentRepository(db *pgxpool.Pool) *PGPaymentRepository {
	return &PGPaymentRepository{pgBase{db: db}}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Method, &p.Status, &p.GatewayOrderID, &p.GatewayRequestID,
		&p.GatewayTransactionID, &p.GatewayMessage, &p.GatewayResponse, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func listPayments(ctx context.Context, q querier, bookingID uuid.UUID) ([]domain.Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PGPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	err := r.q(ctx).QueryRow(ctx, `WITH inserted AS (
			INSERT INTO payments (id, booking_id, amount, method, status, gateway_order_id, gateway_request_id, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		), ordered AS (
			INSERT INTO gateway_orders (order_id, payment_id, request_id)
			SELECT $6, id, $7 FROM inserted WHERE $6::text IS NOT NULL
		)
		SELECT created_at, updated_at FROM inserted`,
		payment.ID, payment.BookingID, payment.Amount, payment.Method, payment.Status, nullable(payment.GatewayOrderID), payment.GatewayRequestID, payment.PaidAt).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
	return translate(err)
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.q(ctx).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

func (r *PGPaymentRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return scanPayment(r.q(ctx).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE id = (SELECT payment_id FROM gateway_orders WHERE order_id=$1)`, orderID))
}

func (r *PGPaymentRepository) ListGatewayOrders(ctx context.Context, paymentID uuid.UUID) ([]domain.GatewayOrder, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT order_id, request_id, payment_id, created_at FROM gateway_orders
		WHERE payment_id=$1 ORDER BY created_at, order_id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.GatewayOrder, 0)
	for rows.Next() {
		var o domain.GatewayOrder
		if err := rows.Scan(&o.OrderID, &o.RequestID, &o.PaymentID, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *PGPaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Payment, error) {
	return listPayments(ctx, r.q(ctx), bookingID)
}

func (r *PGPaymentRepository) ListAwaitingGateway(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status=$1 AND gateway_order_id IS NOT NULL AND updated_at < $2
		ORDER BY updated_at LIMIT $3`, domain.PaymentStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PGPaymentRepository) SetGatewayRequest(ctx context.Context, id uuid.UUID, orderID, requestID string) error {
	res, err := r.q(ctx).Exec(ctx, `WITH updated AS (
			UPDATE payments SET gateway_order_id=$1, gateway_request_id=$2, updated_at=now()
			WHERE id=$3 AND status=$4
			RETURNING id
		)
		INSERT INTO gateway_orders (order_id, payment_id, request_id)
		SELECT $1, id, $2 FROM updated`, orderID, requestID, id, domain.PaymentStatusPending)
	if err != nil {
		return translate(err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGPaymentRepository) SaveGatewayResponse(ctx context.Context, id uuid.UUID, raw string) error {
	_, err := r.q(ctx).Exec(ctx, `UPDATE payments SET gateway_response=$1, updated_at=now() WHERE id=$2`, raw, id)
	return err
}

// Transition is a compare-and-set on status. Concurrent callers moving the
// same payment out of the same state see exactly one changed=true.
func (r *PGPaymentRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, bool, error) {
	p, err := scanPayment(r.q(ctx).QueryRow(ctx, `UPDATE payments SET
			status=$1,
			gateway_transaction_id=CASE WHEN $2 = '' THEN gateway_transaction_id ELSE $2 END,
			gateway_message=CASE WHEN $3 = '' THEN gateway_message ELSE $3 END,
			gateway_response=CASE WHEN $4 = '' THEN gateway_response ELSE $4 END,
			paid_at=coalesce($5, paid_at),
			updated_at=now()
		WHERE id=$6 AND status=$7
		RETURNING `+paymentColumns,
		to, update.TransactionID, update.Message, update.RawResponse, update.PaidAt, id, from))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
