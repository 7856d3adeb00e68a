package kafka

import "time"

// BookingEvent records a booking lifecycle change on the booking events topic.
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     string    `json:"booking_id"`
	Reference     string    `json:"reference"`
	Email         string    `json:"email"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notification is a rendered message waiting for delivery by the worker.
type Notification struct {
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	Reference string    `json:"reference"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RefundEvent is published when staff decide a refund request.
type RefundEvent struct {
	Type       string    `json:"type"`
	RefundID   string    `json:"refund_id"`
	BookingID  string    `json:"booking_id"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	DecidedBy  string    `json:"decided_by"`
	OccurredAt time.Time `json:"occurred_at"`
}
