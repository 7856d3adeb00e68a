package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const identityColumns = `id, email, first_name, last_name, password_hash, role, created_at`

type PGIdentityRepository struct {
	pgBase
}

func NewIdentityRepository(db *pgxpool.Pool) *PGIdentityRepository {
	return &PGIdentityRepository{pgBase{db: db}}
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var i domain.Identity
	if err := row.Scan(&i.ID, &i.Email, &i.FirstName, &i.LastName, &i.PasswordHash, &i.Role, &i.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &i, nil
}

func (r *PGIdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	return scanIdentity(r.q(ctx).QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=$1`, id))
}

func (r *PGIdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return scanIdentity(r.q(ctx).QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email)=lower($1)`, strings.TrimSpace(email)))
}

func (r *PGIdentityRepository) CreateIfAbsent(ctx context.Context, identity *domain.Identity) (*domain.Identity, bool, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	stored, err := scanIdentity(r.q(ctx).QueryRow(ctx, `INSERT INTO identities (id, email, first_name, last_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lower(email)) DO NOTHING
		RETURNING `+identityColumns,
		identity.ID, identity.Email, identity.FirstName, identity.LastName, identity.PasswordHash, identity.Role))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Lost the race to a concurrent insert of the same email.
	existing, err := r.GetByEmail(ctx, identity.Email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

var _ IdentityRepository = (*PGIdentityRepository)(nil)
