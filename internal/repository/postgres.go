package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type pgBase struct {
	db *pgxpool.Pool
}

// q returns the transaction carried by ctx, or the pool.
func (b pgBase) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return b.db
}

// inTx runs fn in a transaction, nested as a savepoint when ctx already
// carries one.
func (b pgBase) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = b.db.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type PGTxManager struct {
	pgBase
}

func NewTxManager(db *pgxpool.Pool) *PGTxManager {
	return &PGTxManager{pgBase{db: db}}
}

func (m *PGTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return m.inTx(ctx, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

var _ TxManager = (*PGTxManager)(nil)

// Migrate applies the embedded schema files in name order.
func Migrate(ctx context.Context, db *pgxpool.Pool) ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(ctx, string(script)); err != nil {
			return nil, fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return names, nil
}

// constraintViolated returns the name of the unique constraint err violated.
func constraintViolated(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if name, ok := constraintViolated(err); ok {
		switch name {
		case "bookings_reference_key":
			return ErrDuplicateReference
		case "seat_allocations_flight_seat_key":
			return ErrSeatTaken
		case "seat_allocations_leg_passenger_key":
			return ErrPassengerSeated
		case "payments_gateway_order_id_key", "gateway_orders_order_id_key":
			return ErrDuplicateOrderID
		case "refund_histories_pending_key":
			return ErrPendingRefundExists
		}
	}
	return err
}
