package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentTransitions lists the states a payment may move to from each state.
var PaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

func CanMovePayment(from, to PaymentStatus) bool {
	for _, next := range PaymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "GATEWAY"
	PaymentMethodCard    PaymentMethod = "CARD"
	PaymentMethodCash    PaymentMethod = "CASH"
)

type Payment struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	Amount    int64
	Method    PaymentMethod
	Status    PaymentStatus

	GatewayOrderID       string
	GatewayRequestID     string
	GatewayTransactionID string
	GatewayMessage       string
	GatewayResponse      string

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GatewayOrder is one order opened with the provider for a payment. A
// payment keeps every order it was sent under; GatewayOrderID on the payment
// is the most recent one.
type GatewayOrder struct {
	OrderID   string
	RequestID string
	PaymentID uuid.UUID
	CreatedAt time.Time
}

// PaymentUpdate carries the fields written together with a status change.
type PaymentUpdate struct {
	TransactionID string
	Message       string
	RawResponse   string
	PaidAt        *time.Time
}
