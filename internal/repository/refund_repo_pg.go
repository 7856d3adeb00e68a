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

const refundColumns = `id, booking_id, booking_reference, reason, amount, requester_name, requester_email, requester_phone, status, admin_notes, processed_at, processed_by, created_at, updated_at`

type PGRefundRepository struct {
	pgBase
}

func NewRefundRepository(db *pgxpool.Pool) *PGRefundRepository {
	return &PGRefundRepository{pgBase{db: db}}
}

func scanRefund(row pgx.Row) (*domain.RefundHistory, error) {
	var h domain.RefundHistory
	if err := row.Scan(&h.ID, &h.BookingID, &h.BookingReference, &h.Reason, &h.Amount, &h.RequesterName, &h.RequesterEmail,
		&h.RequesterPhone, &h.Status, &h.AdminNotes, &h.ProcessedAt, &h.ProcessedBy, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

func (r *PGRefundRepository) list(ctx context.Context, sql string, args ...any) ([]domain.RefundHistory, error) {
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.RefundHistory, 0)
	for rows.Next() {
		h, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *h)
	}
	return refunds, rows.Err()
}

func (r *PGRefundRepository) Create(ctx context.Context, refund *domain.RefundHistory) error {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	err := r.q(ctx).QueryRow(ctx, `INSERT INTO refund_histories (id, booking_id, booking_reference, reason, amount, requester_name, requester_email, requester_phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		refund.ID, refund.BookingID, refund.BookingReference, refund.Reason, refund.Amount, refund.RequesterName, refund.RequesterEmail, refund.RequesterPhone, refund.Status).
		Scan(&refund.CreatedAt, &refund.UpdatedAt)
	return translate(err)
}

func (r *PGRefundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RefundHistory, error) {
	return scanRefund(r.q(ctx).QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_histories WHERE id=$1`, id))
}

func (r *PGRefundRepository) List(ctx context.Context) ([]domain.RefundHistory, error) {
	return r.list(ctx, `SELECT `+refundColumns+` FROM refund_histories ORDER BY created_at DESC`)
}

func (r *PGRefundRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.RefundHistory, error) {
	return r.list(ctx, `SELECT `+refundColumns+` FROM refund_histories WHERE booking_id=$1 ORDER BY created_at DESC`, bookingID)
}

func (r *PGRefundRepository) Decide(ctx context.Context, id uuid.UUID, status domain.RefundStatus, notes, actor string, processedAt *time.Time) (*domain.RefundHistory, bool, error) {
	h, err := scanRefund(r.q(ctx).QueryRow(ctx, `UPDATE refund_histories SET status=$1, admin_notes=$2, processed_by=$3, processed_at=$4, updated_at=now()
		WHERE id=$5 AND status=$6
		RETURNING `+refundColumns, status, notes, actor, processedAt, id, domain.RefundStatusPending))
	if err == nil {
		return h, true, nil
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

var _ RefundRepository = (*PGRefundRepository)(nil)
