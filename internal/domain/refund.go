package domain

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusApproved  RefundStatus = "APPROVED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusCompleted RefundStatus = "COMPLETED"
)

type RefundReason string

const (
	RefundReasonFlightCancelled   RefundReason = "FLIGHT_CANCELLED"
	RefundReasonFlightDelayed     RefundReason = "FLIGHT_DELAYED"
	RefundReasonCustomerCancelled RefundReason = "CUSTOMER_CANCELLED"
	RefundReasonOther             RefundReason = "OTHER"
)

func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonFlightCancelled, RefundReasonFlightDelayed, RefundReasonCustomerCancelled, RefundReasonOther:
		return true
	}
	return false
}

// RefundHistory rows are never deleted, only moved out of Pending.
type RefundHistory struct {
	ID               uuid.UUID
	BookingID        uuid.UUID
	BookingReference string
	Reason           RefundReason
	Amount           int64
	RequesterName    string
	RequesterEmail   string
	RequesterPhone   string
	Status           RefundStatus
	AdminNotes       string
	ProcessedAt      *time.Time
	ProcessedBy      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
