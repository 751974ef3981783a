package models

import "time"

const (
	BookingStatusPending   = "pending"
	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusFailed    = "failed"
)

type Booking struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ItemID          int64      `json:"item_id"`
	ItemType        string     `json:"item_type"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	RebookAllowed   bool       `json:"rebook_allowed"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Payment is one gateway transaction. Amount is in whole currency units.
type Payment struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	BookingID      int64     `json:"booking_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	GatewayOrderID string    `json:"gateway_order_id"`
	TransactionID  *string   `json:"transaction_id,omitempty"`
	RefundID       *string   `json:"refund_id,omitempty"`
	ServiceType    string    `json:"service_type"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Purchase struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	BookingID        int64     `json:"booking_id"`
	ItemID           int64     `json:"item_id"`
	ItemType         string    `json:"item_type"`
	Amount           int64     `json:"amount"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type BookingDetail struct {
	Booking
	Payment *Payment `json:"payment,omitempty"`
}
