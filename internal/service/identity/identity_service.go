// Package identity resolves the owner of a booking, creating guest
// identities for purchasers who are not signed in.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type ResolverUseCase interface {
	// Resolve returns the identity for id when given, otherwise the identity
	// registered for email, creating a guest identity on first sight.
	Resolve(ctx context.Context, id *uuid.UUID, email string) (*domain.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

type Resolver struct {
	identities repository.IdentityRepository
	log        logrus.FieldLogger
	hashCost   int
}

type Option func(*Resolver)

// WithHashCost sets the bcrypt cost of guest password placeholders.
func WithHashCost(cost int) Option {
	return func(r *Resolver) {
		r.hashCost = cost
	}
}

func NewResolver(identities repository.IdentityRepository, logger logrus.FieldLogger, opts ...Option) *Resolver {
	r := &Resolver{
		identities: identities,
		log:        logger,
		hashCost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Resolver) Resolve(ctx context.Context, id *uuid.UUID, email string) (*domain.Identity, error) {
	if id != nil && *id != uuid.Nil {
		return r.GetByID(ctx, *id)
	}

	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.InvalidErr("a valid contact email is required")
	}

	existing, err := r.identities.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.InternalErr(err, "failed to look up identity")
	}

	guest, err := r.newGuest(email)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to create guest identity")
	}
	stored, created, err := r.identities.CreateIfAbsent(ctx, guest)
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to create guest identity")
	}
	if created {
		r.log.WithFields(logrus.Fields{"identity_id": stored.ID}).Info("guest identity created")
	}
	return stored, nil
}

func (r *Resolver) newGuest(email string) (*domain.Identity, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), r.hashCost)
	if err != nil {
		return nil, err
	}

	local, _, _ := strings.Cut(email, "@")
	return &domain.Identity{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    local,
		LastName:     domain.GuestLastName,
		PasswordHash: string(hash),
		Role:         domain.RoleCustomer,
	}, nil
}

func (r *Resolver) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	identity, err := r.identities.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("identity %s not found", id)
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load identity")
	}
	return identity, nil
}

func (r *Resolver) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	identity, err := r.identities.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundErr("no identity for this email")
	}
	if err != nil {
		return nil, apperr.InternalErr(err, "failed to load identity")
	}
	return identity, nil
}

var _ ResolverUseCase = (*Resolver)(nil)
