package domain

import (
	"time"

	"github.com/google/uuid"
)

// GuestLastName marks identities created for unauthenticated purchasers.
const GuestLastName = "(guest)"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

type Identity struct {
	ID           uuid.UUID
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

func (i *Identity) IsGuest() bool {
	return i.LastName == GuestLastName
}
